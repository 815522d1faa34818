package constants

const (
	// IDRandomBytes is the entropy behind every generated row ID.
	IDRandomBytes = 12

	MessageMaxLength = 4000

	// NotificationPreviewLimit bounds the body of MESSAGE notifications, in characters.
	NotificationPreviewLimit = 160

	WSClientSendBufferSize = 256
	AMQPPublishBufferSize  = 1024
)
