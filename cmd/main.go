package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"biblioteca/internal/handlers"
	"biblioteca/internal/repositories"
	"biblioteca/internal/services"
)

func main() {
	var db *gorm.DB
	var readerRepo repositories.ReaderRepository
	var materialRepo repositories.MaterialRepository
	var loanRepo repositories.LoanRepository

	dsn := os.Getenv("DATABASE_URL")
	if dsn != "" {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to connect database: %v", err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			log.Fatalf("failed to get generic DB: %v", err)
		}
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)

		readerRepo = repositories.NewReaderRepository(db)
		materialRepo = repositories.NewMaterialRepository(db)
		loanRepo = repositories.NewLoanRepository(db)
	} else {
		log.Printf("[WARN] DATABASE_URL not set, running with in-memory repositories (state is lost on restart)")
		readerRepo = repositories.NewMemoryReaderRepository()
		materialRepo = repositories.NewMemoryMaterialRepository()
		loanRepo = repositories.NewMemoryLoanRepository()
	}

	loanService, err := services.NewLoanService(db, readerRepo, materialRepo, loanRepo)
	if err != nil {
		log.Fatalf("failed to initialize loan service: %v", err)
	}

	router := gin.Default()

	handlers.RegisterRoutes(router, loanService)

	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = ":8080"
	}

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	log.Printf("Starting server on %s", serverAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
