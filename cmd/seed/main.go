package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logger"
	"github.com/hackgods/clinic-scheduling/internal/protocol"
)

type SeedConfig struct {
	Providers int
	Patients  int
	Units     int
	Protocols int
}

func loadSeedConfig() SeedConfig {
	return SeedConfig{
		Providers: getInt("SEED_PROVIDERS", 100),
		Patients:  getInt("SEED_PATIENTS", 9000),
		Units:     getInt("SEED_UNITS", 5),
		Protocols: getInt("SEED_PROTOCOLS", 20),
	}
}

func main() {
	log, err := logger.New("info", true)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}
	counts := loadSeedConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PoolOptions())
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if _, err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	s := &seeder{pool: pool, faker: faker, log: log}

	steps := []struct {
		name string
		fn   func(context.Context, int) error
		n    int
	}{
		{"providers", s.seedProviders, counts.Providers},
		{"units", s.seedUnits, counts.Units},
		{"patients", s.seedPatients, counts.Patients},
		{"protocols", s.seedProtocols, counts.Protocols},
	}
	for _, step := range steps {
		if err := step.fn(context.Background(), step.n); err != nil {
			log.Fatal("seed failed", zap.String("step", step.name), zap.Error(err))
		}
	}

	log.Info("seed complete")
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

type seeder struct {
	pool  *pgxpool.Pool
	faker *gofakeit.Faker
	log   *zap.Logger
}

var specialties = []string{
	"Dermatology",
	"Physiotherapy",
	"General Practice",
	"Orthopedics",
	"Nutrition",
	"Aesthetics",
	"Acupuncture",
	"Psychology",
	"Speech Therapy",
	"Podiatry",
}

func (s *seeder) seedProviders(ctx context.Context, count int) error {
	s.log.Info("seeding providers", zap.Int("count", count))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		spec := specialties[s.faker.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, uuid.New(), s.faker.Name(), spec)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *seeder) seedUnits(ctx context.Context, count int) error {
	s.log.Info("seeding units", zap.Int("count", count))

	for i := 0; i < count; i++ {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO units (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, uuid.New(), s.faker.City()+" Clinic")
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) seedPatients(ctx context.Context, count int) error {
	s.log.Info("seeding patients", zap.Int("count", count))

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), s.faker.Name(), s.faker.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		s.log.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}
	return nil
}

var services = []string{
	"Laser session",
	"Lymphatic drainage",
	"Physiotherapy session",
	"Nutrition follow-up",
	"Peeling",
	"Acupuncture session",
}

// seedProtocols creates packages of 1-3 services with 1-10 sessions each.
// Service IDs are shared across protocols so the same service can appear
// in several packages.
func (s *seeder) seedProtocols(ctx context.Context, count int) error {
	s.log.Info("seeding protocols", zap.Int("count", count))

	serviceIDs := make([]uuid.UUID, len(services))
	for i := range serviceIDs {
		serviceIDs[i] = uuid.New()
	}

	repo := protocol.NewPgRepository(s.pool)
	tx := db.NewTxRunner(s.pool)

	return tx.WithinTx(ctx, func(ctx context.Context) error {
		for i := 0; i < count; i++ {
			p := protocol.Protocol{
				ID:   uuid.New(),
				Name: s.faker.AdjectiveDescriptive() + " care plan",
			}

			picked := s.faker.Number(1, 3)
			seen := make(map[int]bool, picked)
			for len(seen) < picked {
				idx := s.faker.Number(0, len(services)-1)
				if seen[idx] {
					continue
				}
				seen[idx] = true
				p.Services = append(p.Services, protocol.ProtocolService{
					ServiceID:     serviceIDs[idx],
					Name:          services[idx],
					TotalSessions: s.faker.Number(1, 10),
				})
			}

			if err := repo.CreateProtocol(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
}
