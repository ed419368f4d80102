package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SubscriptionPlan is a catalog entry. The reconciler only reads it.
type SubscriptionPlan struct {
	ID           string          `gorm:"column:id;primaryKey;type:varchar(64)" json:"id"`
	Name         string          `gorm:"column:name;type:varchar(200);not null" json:"name"`
	Segment      string          `gorm:"column:segment;type:varchar(50)" json:"segment"`
	MonthlyPrice decimal.Decimal `gorm:"column:monthly_price;type:numeric(12,2);not null" json:"monthly_price"`
	Features     string          `gorm:"column:features;type:text" json:"-"`
	IsActive     bool            `gorm:"column:is_active;default:true" json:"is_active"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (SubscriptionPlan) TableName() string { return "subscription_plans" }

// FeatureList decodes the JSON feature list; malformed data yields nil.
func (p *SubscriptionPlan) FeatureList() []string {
	if p.Features == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(p.Features), &out); err != nil {
		return nil
	}
	return out
}

// Subscription is the local mirror of one processor-side subscription.
// ExternalSubscriptionID is unique: every event for the same processor
// subscription updates this row.
type Subscription struct {
	ID            string `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	UserID        int64  `gorm:"column:user_id;index" json:"user_id"`
	CustomerEmail string `gorm:"column:customer_email;type:varchar(200)" json:"customer_email"`
	CustomerName  string `gorm:"column:customer_name;type:varchar(200)" json:"customer_name"`

	PlanID   string          `gorm:"column:plan_id;type:varchar(64);index" json:"plan_id"`
	PlanName string          `gorm:"column:plan_name;type:varchar(200)" json:"plan_name"`
	Revenue  decimal.Decimal `gorm:"column:revenue;type:numeric(12,2)" json:"revenue"`

	Status             SubscriptionStatus `gorm:"column:status;type:varchar(20);index" json:"status"`
	StartedAt          *time.Time         `gorm:"column:started_at" json:"started_at,omitempty"`
	CurrentPeriodStart *time.Time         `gorm:"column:current_period_start" json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time         `gorm:"column:current_period_end" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool               `gorm:"column:cancel_at_period_end;default:false" json:"cancel_at_period_end"`
	CancelledAt        *time.Time         `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`

	CancellationNotifiedAt *time.Time `gorm:"column:cancellation_notified_at" json:"cancellation_notified_at,omitempty"`

	ExternalSubscriptionID string `gorm:"column:external_subscription_id;type:varchar(255);uniqueIndex;not null" json:"external_subscription_id"`
	ExternalCustomerID     string `gorm:"column:external_customer_id;type:varchar(255);index" json:"external_customer_id"`
	LastUpgradeSessionID   string `gorm:"column:last_upgrade_session_id;type:varchar(255)" json:"last_upgrade_session_id,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// State extracts the status-machine portion of the row.
func (s *Subscription) State() SubscriptionState {
	return SubscriptionState{
		Status:            s.Status,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		CancelledAt:       s.CancelledAt,
		PeriodStart:       s.CurrentPeriodStart,
		PeriodEnd:         s.CurrentPeriodEnd,
	}
}

// Apply copies a state value onto the row.
func (s *Subscription) Apply(st SubscriptionState) {
	s.Status = st.Status
	s.CancelAtPeriodEnd = st.CancelAtPeriodEnd
	s.CancelledAt = st.CancelledAt
	s.CurrentPeriodStart = st.PeriodStart
	s.CurrentPeriodEnd = st.PeriodEnd
}

// PlanChange is the local half of a completed plan upgrade.
type PlanChange struct {
	PlanID           string
	PlanName         string
	Revenue          decimal.Decimal
	CurrentPeriodEnd *time.Time
	SessionID        string
}
