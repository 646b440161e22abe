package handlers

import "github.com/gofiber/fiber/v2"

// Handlers groups every engage handler for route registration.
type Handlers struct {
	Health        *HealthHandler
	Webhook       *WebhookHandler
	Conversations *ConversationHandler
	Campaigns     *CampaignHandler
	Customers     *CustomerHandler
	Media         *MediaHandler
	WhatsApp      *WhatsAppHandler
	History       *HistoryHandler
}

// Register mounts the engage API on app.
func Register(app fiber.Router, h Handlers) {
	app.Get("/health", h.Health.GetHealth)

	// Provider webhooks (tenant comes from the payload's instance)
	app.Post("/webhooks/:provider/messages", h.Webhook.ReceiveMessage)
	app.Post("/webhooks/:provider/status", h.Webhook.ReceiveStatus)

	// Conversations
	app.Patch("/conversations/:id/status", h.Conversations.ChangeStatus)
	app.Post("/conversations/:id/participants/:userId", h.Conversations.AddParticipant)
	app.Delete("/conversations/:id/participants/:userId", h.Conversations.RemoveParticipant)
	app.Post("/conversations/:id/read", h.Conversations.MarkAsRead)
	app.Get("/conversations/:id/unread", h.Conversations.GetUnread)
	app.Post("/conversations/:id/unread/recalculate", h.Conversations.Recalculate)
	app.Post("/conversations/:id/draft", h.Conversations.Draft)
	app.Get("/conversations/:id/history", h.History.ConversationHistory)

	// Campaigns
	app.Post("/campaigns", h.Campaigns.CreateCampaign)
	app.Post("/campaigns/:id/contacts", h.Campaigns.Enroll)
	app.Get("/campaigns/:id/contacts", h.Campaigns.ListContacts)
	app.Post("/campaigns/:id/contacts/retry-failed", h.Campaigns.RetryAllFailed)
	app.Get("/campaigns/:id/stats", h.Campaigns.Stats)
	app.Get("/campaigns/:id/report", h.Campaigns.Report)
	app.Post("/campaigns/:id/dispatch", h.Campaigns.Dispatch)
	app.Post("/campaign-contacts/:id/retry", h.Campaigns.RetryContact)
	app.Post("/campaign-contacts/:id/exclude", h.Campaigns.ExcludeContact)
	app.Post("/campaign-contacts/:id/reinclude", h.Campaigns.ReincludeContact)
	app.Get("/campaign-contacts/:id/history", h.History.ContactHistory)

	// Customers
	app.Post("/customers", h.Customers.ResolveCustomer)
	app.Get("/customers/:id", h.Customers.GetCustomer)

	// Media
	app.Get("/messages/:id/media", h.Media.GetMedia)

	// WhatsApp numbers and click-to-chat
	app.Get("/whatsapp/link", h.WhatsApp.GetLink)
	app.Get("/whatsapp/qr", h.WhatsApp.GetQRCode)
	app.Post("/whatsapp/instances", h.WhatsApp.RegisterInstance)
}
