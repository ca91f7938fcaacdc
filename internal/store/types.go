package store

// Watchlist is the mutable monitoring document: which groups are watched,
// which keywords gate classification, and whether alerting is on. It is
// rewritten in full on every mutation.
type Watchlist struct {
	TargetGroups []string `json:"target_groups"`
	Keywords     []string `json:"keywords"`
	EnableAlert  bool     `json:"enable_alert"`
}

// DefaultWatchlist returns the document materialized when the file is
// missing or unreadable.
func DefaultWatchlist() *Watchlist {
	return &Watchlist{
		TargetGroups: []string{},
		Keywords:     []string{"通知", "重要", "紧急", "提醒", "必看"},
		EnableAlert:  true,
	}
}

// Extracted holds the six fields the model pulls out of a qualifying
// message.
type Extracted struct {
	Title    string `json:"title"`
	Time     string `json:"time"`
	Location string `json:"location"`
	Content  string `json:"content"`
	Action   string `json:"action"`
	IsUrgent bool   `json:"is_urgent"`
}

// Notification is one stored record. ID and Timestamp are assigned on
// append; IsRead is the only field mutated afterwards.
type Notification struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	IsRead     bool   `json:"is_read"`
	Group      string `json:"group"`
	Sender     string `json:"sender"`
	RawContent string `json:"raw_content"`
	Title      string `json:"title"`
	Time       string `json:"time"`
	Location   string `json:"location"`
	Content    string `json:"content"`
	Action     string `json:"action"`
	IsUrgent   bool   `json:"is_urgent"`
}
