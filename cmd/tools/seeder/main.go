package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/noah-isme/backend-proposal/internal/catalog"
	"github.com/noah-isme/backend-proposal/internal/customer"
	"github.com/noah-isme/backend-proposal/internal/pricing"
)

type demoCustomer struct {
	AgentID  string
	Name     string
	Gender   string
	Relation string
	Phone    string
	Status   customer.Status
	Lines    pricing.Selection
}

var demoCustomers = []demoCustomer{
	{"A001", "林志明", "男", "本人", "0912-345-678", customer.StatusContacted, pricing.Selection{
		{Category: "永念", Variant: "2人", Mode: catalog.ModeInstallment, Quantity: 1},
	}},
	{"A001", "陳美華", "女", "配偶", "0922-111-222", customer.StatusClosed, pricing.Selection{
		{Category: "永念", Variant: "2人", Mode: catalog.ModeInstallment, Quantity: 1},
		{Category: "永願", Variant: "2人", Mode: catalog.ModeInstallment, Quantity: 1},
	}},
	{"A001", "王大同", "男", "子女", "0933-444-555", customer.StatusNotContacted, nil},
	{"A002", "張淑芬", "女", "本人", "0955-666-777", customer.StatusContacted, pricing.Selection{
		{Category: "恩典園一期", Variant: "晨星2人", Mode: catalog.ModeGroupInstallment, Quantity: 2},
	}},
	{"A002", "黃建國", "男", "父母", "0966-888-999", customer.StatusDeclined, nil},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	if err := customer.MigrateUp(dbURL); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	cat, err := catalog.Load(os.Getenv("CATALOG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}
	log.Printf("Using catalog %s", cat.Version())

	fmt.Println("Seeding Customers...")
	for i, c := range demoCustomers {
		id := seedID("customer", c.AgentID, c.Name)
		_, err := db.Exec(`
			INSERT INTO customers (id, agent_id, client_name, gender, relation, phone, current_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING;
		`, id, c.AgentID, c.Name, c.Gender, c.Relation, c.Phone, string(c.Status))
		if err != nil {
			log.Printf("Failed to seed customer %s: %v", c.Name, err)
			continue
		}
		if len(c.Lines) == 0 {
			continue
		}
		if err := seedProposal(db, cat, id, c, fmt.Sprintf("seed-%d", i+1)); err != nil {
			log.Printf("Failed to seed proposal for %s: %v", c.Name, err)
		}
	}

	log.Println("Seeding completed successfully!")
}

func seedProposal(db *sql.DB, cat *catalog.Catalog, customerID string, c demoCustomer, requestID string) error {
	summary, err := pricing.Compute(c.Lines, cat)
	if err != nil {
		return err
	}
	lines, err := json.Marshal(summary.Lines)
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`
		INSERT INTO customer_proposals (id, customer_id, agent_id, request_id, catalog_version, final_total, due_at_signing, terms, lines)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9::jsonb)
		ON CONFLICT (agent_id, customer_id, request_id) DO NOTHING;
	`, seedID("proposal", requestID), customerID, c.AgentID, requestID, summary.CatalogVersion,
		summary.FinalTotal.String(), summary.DueAtSigning.String(), summary.Terms, string(lines))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	if _, err := tx.Exec(`
		UPDATE customers SET latest_proposal_amount = $2::numeric, latest_proposal_date = now(), updated_at = now()
		WHERE id = $1;
	`, customerID, summary.FinalTotal.String()); err != nil {
		return err
	}
	return tx.Commit()
}

// seedID derives stable ids so re-running the seeder does not duplicate rows.
func seedID(parts ...string) string {
	name := "proposal-seed"
	for _, p := range parts {
		name += ":" + p
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
