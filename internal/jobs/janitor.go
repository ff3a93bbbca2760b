package jobs

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tourbook/sessiond/internal/models"
	"tourbook/sessiond/internal/store"
)

// Janitor sweeps expired remembered sessions out of the persistent tier.
// Live manager instances are never forced out mid-session: expiry of the
// in-memory identity stays a load-time check, the janitor only reclaims
// storage that would otherwise linger until the next explicit write.
type Janitor struct {
	cron       *cron.Cron
	persistent store.Store
	log        zerolog.Logger
}

func NewJanitor(persistent store.Store, log zerolog.Logger) *Janitor {
	return &Janitor{
		cron:       cron.New(cron.WithSeconds()),
		persistent: persistent,
		log:        log,
	}
}

func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc("0 0 * * * *", j.run); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := j.Sweep(ctx); err != nil {
		j.log.Error().Err(err).Msg("session sweep failed")
	}
}

// Sweep removes every session key when the remembered horizon has passed.
func (j *Janitor) Sweep(ctx context.Context) error {
	remembered, err := j.persistent.Get(ctx, store.KeyRememberMe)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil
		}
		return err
	}
	if remembered != "true" {
		return nil
	}

	raw, err := j.persistent.Get(ctx, store.KeyTokenExpiry)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil
		}
		return err
	}
	expiry, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return err
	}
	if time.Now().UnixMilli() <= expiry {
		return nil
	}

	keys := store.HousekeepingKeys()
	for _, role := range []models.Role{models.RoleAdmin, models.RoleStaff, models.RoleUser} {
		keys = append(keys, store.SessionKeys(role)...)
	}
	if err := j.persistent.Delete(ctx, keys...); err != nil {
		return err
	}

	j.log.Info().Msg("expired remembered session swept")
	return nil
}
