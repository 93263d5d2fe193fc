package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonPermissionDenied ReasonCode = "permission_denied"

	ReasonTranscriptionFailed ReasonCode = "transcription_failed"
	ReasonAnalysisParse       ReasonCode = "analysis_parse"
	ReasonNoImage             ReasonCode = "no_image"
	ReasonChatRequest         ReasonCode = "chat_request_failed"

	ReasonCredentialMissing ReasonCode = "credential_missing"

	ReasonBusy ReasonCode = "busy"
)
