package enum

// ── CHECK constrained in DB (orders.status, carts.scope) ──

const (
	OrderStatusOrdered   = "ORDERED"
	OrderStatusChecking  = "CHECKING"
	OrderStatusPreparing = "PREPARING"
	OrderStatusPrepared  = "PREPARED"
	OrderStatusTakenOver = "TAKENOVER"
	OrderStatusComplete  = "COMPLETE"
	OrderStatusCancel    = "CANCEL"
)

const (
	CartScopeIndividual = "INDIVIDUAL"
	CartScopeGroup      = "GROUP"
)

// ── No DB constraint ──

// Token roles. Only ever carried in JWT claims.
const (
	UserRoleCustomer = "CUSTOMER"
	UserRoleStaff    = "STAFF"
)

const (
	DiscountTypePercentage = "PERCENTAGE"
	DiscountTypeFixed      = "FIXED_AMOUNT"
)

// Socket events pushed to mobile clients.
const (
	EventNewOrder          = "new-order"
	EventOrderNotification = "order-notification"
)

// Socket room prefixes (join-shop-topic / join-user-topic).
const (
	TopicShopPrefix = "shop:"
	TopicUserPrefix = "user:"
)
