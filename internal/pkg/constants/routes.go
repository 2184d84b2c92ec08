package constants

// Route constants
const (
	HealthRoute  = "/healthz"
	MetricsRoute = "/metrics"
	// Gateway notifications, :type is plan or invoice
	MercadoPagoWebhookRoute = "/webhooks/mercadopago/:type"
	AdminPrefix             = "/admin"
)
