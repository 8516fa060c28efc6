package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

var (
	providerTypes = []string{"doctor", "nurse", "midwife", "community_worker"}
	facilityTypes = []string{"hospital", "clinic", "health_centre", "dispensary"}
)

func main() {
	logger := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL")).With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	seedCtx := context.Background()
	if err := seedAdmin(seedCtx, pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed admin")
	}
	if err := seedProviders(seedCtx, pool, logger, 50); err != nil {
		logger.Fatal().Err(err).Msg("seed providers")
	}
	if err := seedFacilities(seedCtx, pool, logger, 10); err != nil {
		logger.Fatal().Err(err).Msg("seed facilities")
	}
	if err := seedPatients(seedCtx, pool, logger, 5000); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	id := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO users (id, first_name, last_name, email, role, user_type, is_superuser)
		VALUES ($1, $2, $3, $4, 'admin', 'admin', TRUE)
	`, id, gofakeit.FirstName(), gofakeit.LastName(), gofakeit.Email())
	if err != nil {
		return err
	}
	logger.Info().Str("user_id", id.String()).Msg("admin seeded")
	return nil
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding providers")

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			userType := gofakeit.RandomString(providerTypes)
			if !appointment.IsEligibleProviderType(userType) {
				return fmt.Errorf("seed provider type %q is not bookable", userType)
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, first_name, last_name, email, phone_number, role, user_type)
				VALUES ($1, $2, $3, $4, $5, 'provider', $6)
			`, uuid.New(), gofakeit.FirstName(), gofakeit.LastName(), gofakeit.Email(), gofakeit.Phone(), userType)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func seedFacilities(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding facilities")

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO health_facilities (id, name, facility_type, phone_number)
				VALUES ($1, $2, $3, $4)
			`, uuid.New(), gofakeit.City()+" Health Centre", gofakeit.RandomString(facilityTypes), gofakeit.Phone())
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				_, err := tx.Exec(ctx, `
					INSERT INTO patients (id, patient_id, first_name, last_name, email, phone_number)
					VALUES ($1, $2, $3, $4, $5, $6)
					ON CONFLICT (patient_id) DO NOTHING
				`, uuid.New(), gofakeit.Numerify("PT-##########"), gofakeit.FirstName(), gofakeit.LastName(),
					gofakeit.Email(), gofakeit.Phone())
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		logger.Info().Int("seeded", end).Int("total", count).Msg("patients progress")
	}

	return nil
}
