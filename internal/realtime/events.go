package realtime

// Event types delivered to websocket subscribers.
const (
	// EventLikeUpdate carries the authoritative like state of a post.
	EventLikeUpdate = "like-update"
	// EventCommentUpdate announces a new comment on a post.
	EventCommentUpdate = "comment-update"
	// EventNotification delivers a freshly persisted notification to its
	// recipient, together with the updated unread count.
	EventNotification = "notification"
)
