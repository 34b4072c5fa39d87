package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"paydesk/internal/config"
	"paydesk/internal/identity"
	"paydesk/internal/logging"
	"paydesk/internal/models"
	"paydesk/internal/repositories"
	"paydesk/internal/sandbox"
	"paydesk/utils"
)

var seedLeads = []models.LeadOrCustomerSummary{
	{SourceType: models.SourceLead, LeadID: "L-1001", FullName: "Aisyah Rahman", EmailAddress: "aisyah@example.com", PhoneNumber: "+60123456789", CompanyName: "Rahman Trading", Status: "qualified"},
	{SourceType: models.SourceLead, LeadID: "L-1002", FullName: "Daniel Wong", EmailAddress: "daniel.wong@example.com", PhoneNumber: "+60198765432", Status: "new"},
	{SourceType: models.SourceCustomer, CustomerID: "C-2001", FullName: "Priya Nair", EmailAddress: "priya@example.com", PhoneNumber: "+60111222333", CompanyName: "Nair Logistics", Status: "active"},
}

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	infoLog := log.New(os.Stdout, "INFO\t", log.Ldate|log.Ltime)
	errorLog := log.New(os.Stderr, "ERROR\t", log.Ldate|log.Ltime|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		errorLog.Fatal(err)
	}
	addr := flag.String("addr", cfg.Sandbox.Address, "HTTP network address")
	flag.Parse()

	logger := logging.New(os.Stdout, cfg.Logging)

	dialect, err := repositories.ParseDialect(cfg.Sandbox.Database.Driver)
	if err != nil {
		errorLog.Fatal(err)
	}
	db, err := openDB(dialect.DriverName(), cfg.Sandbox.Database.URL)
	if err != nil {
		errorLog.Fatal(err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	payments := repositories.NewPaymentRepo(db, dialect)
	if err := payments.Migrate(ctx); err != nil {
		errorLog.Fatal(err)
	}
	leads := repositories.NewLeadRepo(db, dialect)
	if n, err := leads.SeedLeads(ctx, seedLeads); err != nil {
		errorLog.Fatal(err)
	} else if n > 0 {
		infoLog.Printf("seeded %d leads", n)
	}
	cancel()

	provider, err := identity.NewDevProvider(cfg.Identity)
	if err != nil {
		errorLog.Fatal(err)
	}
	tokens, err := utils.NewManager(cfg.Identity.DevSecret)
	if err != nil {
		errorLog.Fatal(err)
	}

	var presigner sandbox.Presigner
	if cfg.Sandbox.Storage.Bucket != "" {
		p, err := utils.NewS3Presigner(cfg.Sandbox.Storage)
		if err != nil {
			errorLog.Fatal(err)
		}
		presigner = p
	} else {
		infoLog.Printf("storage bucket not configured, uploads disabled")
	}

	srv, err := sandbox.NewServer(sandbox.Server{
		Payments:  payments,
		Leads:     leads,
		Users:     provider,
		Tokens:    tokens,
		Presigner: presigner,
		Console:   cfg.Console,
		Logger:    logger,
	})
	if err != nil {
		errorLog.Fatal(err)
	}

	httpSrv := &http.Server{
		Addr:         *addr,
		ErrorLog:     errorLog,
		Handler:      srv.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	infoLog.Printf("Starting sandbox API on %s (%s)", *addr, dialect)
	if err := httpSrv.ListenAndServe(); err != nil {
		errorLog.Fatal(err)
	}
}

func openDB(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
