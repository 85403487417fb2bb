package registry

// User is a registered relay participant. Endpoint is the base URL of the
// user's own peer service, used for delivery and presence probing. Online is
// owned by the presence poller; everything else is immutable after creation.
type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	Online   bool   `json:"online"`
}

// Message is a relayed text message. Delivered reflects the outcome of the
// single best-effort delivery attempt made when the message was created.
type Message struct {
	ID        int    `json:"id"`
	From      int    `json:"from"`
	To        int    `json:"to"`
	Text      string `json:"text"`
	Delivered bool   `json:"delivered"`
}
