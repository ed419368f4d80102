package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cleanhub/internal/config"
	"cleanhub/internal/database"
	"cleanhub/internal/domain"
	"cleanhub/internal/middleware"
	jwtsvc "cleanhub/internal/pkg/jwt"
	"cleanhub/internal/repository"
)

const demoReference = "demo-booking-ref"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("level=warn msg=.env not loaded err=%v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running AutoMigrate...")
	if err := database.Migrate(db); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	ctx := context.Background()

	// ================== CATALOG ==================
	standard, err := seedService(ctx, db, "Standard cleaning", "Regular home cleaning", map[string]string{
		"Bedroom":     "30.00",
		"Bathroom":    "20.00",
		"Kitchen":     "35.00",
		"Living room": "25.00",
	})
	if err != nil {
		log.Fatalf("seed standard cleaning: %v", err)
	}
	if _, err := seedService(ctx, db, "Deep cleaning", "Top to bottom, inside appliances", map[string]string{
		"Bedroom":  "55.00",
		"Bathroom": "40.00",
		"Oven":     "45.00",
		"Fridge":   "30.00",
	}); err != nil {
		log.Fatalf("seed deep cleaning: %v", err)
	}

	// ================== PLANS ==================
	plans := repository.NewPlanRepository(db)
	for _, p := range []domain.SubscriptionPlan{
		{ID: "basic", Name: "Basic", Segment: "home", MonthlyPrice: decimal.RequireFromString("79.00"), Features: `["One standard clean per month"]`, IsActive: true},
		{ID: "plus", Name: "Plus", Segment: "home", MonthlyPrice: decimal.RequireFromString("149.00"), Features: `["Two standard cleans per month","Priority scheduling"]`, IsActive: true},
		{ID: "business", Name: "Business", Segment: "office", MonthlyPrice: decimal.RequireFromString("399.00"), Features: `["Weekly office clean","Dedicated team"]`, IsActive: true},
	} {
		plan := p
		if err := plans.Upsert(ctx, &plan); err != nil {
			log.Fatalf("seed plan %s: %v", p.ID, err)
		}
	}
	log.Println("Plans seeded: basic, plus, business")

	// ================== DEMO DRAFT ==================
	if err := seedDemoDraft(ctx, db, standard); err != nil {
		log.Fatalf("seed demo draft: %v", err)
	}
	log.Printf("Demo draft ready: client_reference_id=%s", demoReference)

	// ================== ADMIN TOKEN ==================
	token, err := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL).GenerateToken(1, middleware.RoleAdmin)
	if err != nil {
		log.Fatalf("issue admin token: %v", err)
	}
	log.Printf("Admin bearer token (valid %s):\n%s", cfg.JWTTTL, token)
}

// seedService creates the service and its variables unless a service with the
// same name already exists.
func seedService(ctx context.Context, db *gorm.DB, name, description string, variables map[string]string) (*domain.Service, error) {
	var existing domain.Service
	err := db.WithContext(ctx).Preload("Variables").Where("name = ?", name).First(&existing).Error
	if err == nil {
		log.Printf("Service %q already present (id=%d)", name, existing.ID)
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	svc := &domain.Service{Name: name, Description: description, IsActive: true}
	for varName, price := range variables {
		svc.Variables = append(svc.Variables, domain.ServiceVariable{
			Name:      varName,
			UnitPrice: decimal.RequireFromString(price),
			IsActive:  true,
		})
	}
	if err := repository.NewCatalogRepository(db).CreateService(ctx, svc); err != nil {
		return nil, err
	}
	log.Printf("Service %q created with %d variables", name, len(svc.Variables))
	return svc, nil
}

func seedDemoDraft(ctx context.Context, db *gorm.DB, svc *domain.Service) error {
	var services []domain.DraftService
	total := decimal.Zero
	for _, v := range svc.Variables {
		if v.Name != "Bedroom" && v.Name != "Bathroom" {
			continue
		}
		services = append(services, domain.DraftService{ServiceID: svc.ID, VariableID: v.ID, Quantity: 1})
		total = total.Add(v.UnitPrice)
	}

	payload, err := json.Marshal(domain.DraftPayload{
		Customer:   domain.DraftCustomer{Name: "Demo Customer", Email: "demo@cleanhub.local", Phone: "+1 555 0100"},
		Address:    domain.DraftAddress{Line1: "1 Demo Street", City: "Springfield", PostalCode: "12345"},
		Services:   services,
		Date:       time.Now().AddDate(0, 0, 7).Format("2006-01-02"),
		TimeWindow: domain.DraftTimeWindow{Start: "09:00", End: "12:00"},
		Frequency:  domain.FrequencyOnce,
		Price:      total,
	})
	if err != nil {
		return err
	}

	draft := domain.PendingBookingDraft{ReferenceID: demoReference, Payload: string(payload)}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reference_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "created_at"}),
	}).Create(&draft).Error
}
