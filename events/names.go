package events

// Name is the wire name of a message type.
type Name string

func (n Name) String() string { return string(n) }

// Session status.
const (
	SessionStarted           Name = "SessionStarted"
	SessionStartupFailure    Name = "SessionStartupFailure"
	SessionTerminated        Name = "SessionTerminated"
	SessionConnectionUp      Name = "SessionConnectionUp"
	SessionConnectionDown    Name = "SessionConnectionDown"
	SessionClusterInfo       Name = "SessionClusterInfo"
	SessionClusterUpdate     Name = "SessionClusterUpdate"
	SlowConsumerWarning      Name = "SlowConsumerWarning"
	SlowConsumerWarningClear Name = "SlowConsumerWarningCleared"
	DataLoss                 Name = "DataLoss"
)

// Service status.
const (
	ServiceOpened           Name = "ServiceOpened"
	ServiceOpenFailure      Name = "ServiceOpenFailure"
	ServiceRegistered       Name = "ServiceRegistered"
	ServiceRegisterFailure  Name = "ServiceRegisterFailure"
	ServiceDeregistered     Name = "ServiceDeregistered"
	ServiceDown             Name = "ServiceDown"
	ServiceUp               Name = "ServiceUp"
	ServiceAvailabilityInfo Name = "ServiceAvailabilityInfo"
)

// Token and authorization.
const (
	TokenGenerationSuccess Name = "TokenGenerationSuccess"
	TokenGenerationFailure Name = "TokenGenerationFailure"
	AuthorizationSuccess   Name = "AuthorizationSuccess"
	AuthorizationFailure   Name = "AuthorizationFailure"
	AuthorizationRevoked   Name = "AuthorizationRevoked"
	EntitlementChanged     Name = "EntitlementChanged"
)

// Requests.
const (
	RequestFailure        Name = "RequestFailure"
	ReferenceDataResponse Name = "ReferenceDataResponse"
	ResolutionSuccess     Name = "ResolutionSuccess"
	ResolutionFailure     Name = "ResolutionFailure"
	PermissionRequest     Name = "PermissionRequest"
	PermissionResponse    Name = "PermissionResponse"
	ReferenceDataRequest  Name = "ReferenceDataRequest"
	AuthorizationRequest  Name = "AuthorizationRequest"

	HistoricalDataRequest  Name = "HistoricalDataRequest"
	HistoricalDataResponse Name = "HistoricalDataResponse"
)

// Subscription status.
const (
	SubscriptionStarted            Name = "SubscriptionStarted"
	SubscriptionFailure            Name = "SubscriptionFailure"
	SubscriptionStreamsActivated   Name = "SubscriptionStreamsActivated"
	SubscriptionStreamsDeactivated Name = "SubscriptionStreamsDeactivated"
	SubscriptionTerminated         Name = "SubscriptionTerminated"
)

// Topic status.
const (
	TopicCreated       Name = "TopicCreated"
	TopicCreateFailure Name = "TopicCreateFailure"
	TopicDeleted       Name = "TopicDeleted"
	TopicSubscribed    Name = "TopicSubscribed"
	TopicResubscribed  Name = "TopicResubscribed"
	TopicUnsubscribed  Name = "TopicUnsubscribed"
	TopicActivated     Name = "TopicActivated"
	TopicDeactivated   Name = "TopicDeactivated"
	TopicRecap         Name = "TopicRecap"
)

// Data.
const (
	MarketData Name = "MarketData"
)

// Element names used by the well-known messages.
const (
	ElementToken           = "token"
	ElementReason          = "reason"
	ElementTopic           = "topic"
	ElementDescription     = "description"
	ElementResponseError   = "responseError"
	ElementSecurityData    = "securityData"
	ElementSecurity        = "security"
	ElementSecurityError   = "securityError"
	ElementFieldData       = "fieldData"
	ElementFieldExceptions = "fieldExceptions"
	ElementFieldID         = "fieldId"
	ElementErrorInfo       = "errorInfo"
	ElementSecurities      = "securities"
	ElementFields          = "fields"
	ElementDate            = "date"

	ElementStartDate            = "startDate"
	ElementEndDate              = "endDate"
	ElementPeriodicitySelection = "periodicitySelection"
	ElementMaxDataPoints        = "maxDataPoints"
)

// Well-known service names.
const (
	ServiceAuth    = "//blp/apiauth"
	ServiceMktData = "//blp/mktdata"
	ServiceRefData = "//blp/refdata"
	ServiceMpfbAPI = "//blp/mpfbapi"
	ServiceViper   = "//viper/mktdata"
)

// TerminalNames are the session-status names that end a session by default.
var TerminalNames = []Name{SessionTerminated, SessionStartupFailure}
