package rabbitmq

// Имена обменника и очередей биллинговой шины.
const (
	BillingExchange = "billing"

	EntitlementsQueue = "billing.entitlements"
	DunningQueue      = "billing.dunning"
	UsageQueue        = "usage.events"
	UpdatesQueue      = "entitlement.updates"

	BillingRoutingKey     = "billing.event"
	UsageRoutingKey       = "usage.event"
	EntitlementRoutingKey = "entitlement.event"
)

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetBillingQueues возвращает очереди потребителей событий биллинга:
// обе получают один и тот же поток по общему routing key.
func GetBillingQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: EntitlementsQueue, RoutingKey: BillingRoutingKey},
		{QueueName: DunningQueue, RoutingKey: BillingRoutingKey},
	}
}

// GetUsageQueues возвращает очереди потребителя usage-событий.
func GetUsageQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: UsageQueue, RoutingKey: UsageRoutingKey},
	}
}

// GetUpdatesQueues возвращает очереди исходящих событий entitlement.*
// для внешних подписчиков.
func GetUpdatesQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: UpdatesQueue, RoutingKey: EntitlementRoutingKey},
	}
}
