package defs

// Common labels for logging
const (
	LabelComponent = "component"
	LabelName      = "name"
	LabelPart      = "part"

	LabelAddress      = "address"
	LabelClient       = "client"
	LabelClientID     = "clientId"
	LabelApplication  = "application"
	LabelWorkerNumber = "worker"
)

// Replies of the line protocol
const (
	ReplyConnected     = "OK:CONNECTED:"
	ReplyQueued        = "OK:QUEUED:"
	ReplyPong          = "OK:PONG"
	ReplyStats         = "OK:STATS:"
	ReplyBufferStats   = "OK:BUFFER_STATS:"
	ReplyDisconnecting = "OK:DISCONNECTING"
	ReplyCommands      = "OK:COMMANDS:PING,STATS,BUFFER_STATS,DISCONNECT,HELP"

	ReplyErrorEmptyMessage     = "ERROR:EMPTY_MESSAGE"
	ReplyErrorInvalidFormat    = "ERROR:INVALID_MESSAGE_FORMAT"
	ReplyErrorParseFailed      = "ERROR:PARSE_FAILED"
	ReplyErrorBufferFull       = "ERROR:BUFFER_FULL:BACKPRESSURE_ACTIVE"
	ReplyErrorUnknownCommand   = "ERROR:UNKNOWN_COMMAND:"
	ReplyErrorProcessingFailed = "ERROR:PROCESSING_FAILED:"
)

// CommandPrefix marks a control command line in the wire protocol, as opposed to a log record line
const CommandPrefix = "CMD:"
