package marketplace_client

const (
	// Marketplace REST API
	AuctionsPath   = "/auctions"
	BidHistoryPath = "/bids/history"

	// Notification hub REST API
	NotificationsPath = "/api/notifications"
	ReadAllPath       = NotificationsPath + "/read-all"

	BidderEmailParam = "email"
	RecipientParam   = "recipient"

	JsonHeader      = "Accept"
	JsonContentType = "application/json"
	AuthHeader      = "Authorization"
)
