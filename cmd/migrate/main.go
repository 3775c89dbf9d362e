package main

import (
	"flag"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/linguaschool/chat-backend/internal/config"
	"github.com/linguaschool/chat-backend/internal/migration"
	pkglogger "github.com/linguaschool/chat-backend/pkg/logger"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "configs/config.local.yaml", "config file path")
	localProfiles := flag.Bool("local-profiles", false, "create and seed the local profile table")
	verify := flag.Bool("verify", false, "check chat data integrity instead of migrating")
	verbose := flag.Bool("verbose", false, "verbose SQL logging")
	flag.Parse()

	config.LoadDotEnv()
	pkglogger.InitStructured(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	log := pkglogger.GetLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logLevel := gormlogger.Warn
	if *verbose {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(cfg.Database.DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get underlying DB")
	}
	defer sqlDB.Close()

	if *verify {
		code := runVerify(db)
		sqlDB.Close()
		os.Exit(code)
	}

	start := time.Now()
	if err := migration.Run(db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}
	if *localProfiles {
		if err := migration.RunLocalProfiles(db); err != nil {
			log.Fatal().Err(err).Msg("local profile seed failed")
		}
	}
	log.Info().Dur("took", time.Since(start)).Bool("local_profiles", *localProfiles).Msg("migration completed")
}

// runVerify returns the process exit code: 0 when clean, 2 when problems were found
func runVerify(db *gorm.DB) int {
	log := pkglogger.GetLogger()

	problems, err := migration.Verify(db)
	if err != nil {
		log.Error().Err(err).Msg("verify failed")
		return 1
	}
	for _, p := range problems {
		log.Warn().Str("check", p.Check).Uint64("conversation_id", p.ConversationID).Msg(p.Detail)
	}
	if len(problems) > 0 {
		log.Warn().Int("problems", len(problems)).Msg("verify found problems")
		return 2
	}
	log.Info().Msg("verify passed")
	return 0
}
