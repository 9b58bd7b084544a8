// Package shared wires the dependencies common to the API and the admin CLI.
package shared

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
	"github.com/trezcool/iems/core/society"
	"github.com/trezcool/iems/core/user"
	emailsvc "github.com/trezcool/iems/services/email"
	"github.com/trezcool/iems/storage/database"
	inmemdb "github.com/trezcool/iems/storage/database/inmem"
	sqlxrepos "github.com/trezcool/iems/storage/database/sqlx"
)

// Store groups the repositories of the application and the transactor they share.
type Store struct {
	DB          *sqlx.DB // nil for the in-memory store
	Tx          core.Transactor
	Users       user.Repository
	Societies   society.Repository
	Events      event.Repository
	Modules     event.ModuleRepository
	Speakers    event.SpeakerRepository
	Engagements event.EngagementRepository

	close func() error
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStore opens the in-memory store when conf.Database.InMemory is set, postgres otherwise.
// With migrate, the postgres role and database are created if missing and pending migrations applied.
func OpenStore(ctx context.Context, conf *core.Config, migrate bool) (*Store, error) {
	if conf.Database.InMemory {
		db := inmemdb.Open()
		return &Store{
			Tx:          db,
			Users:       inmemdb.NewUserRepository(db),
			Societies:   inmemdb.NewSocietyRepository(db),
			Events:      inmemdb.NewEventRepository(db),
			Modules:     inmemdb.NewModuleRepository(db),
			Speakers:    inmemdb.NewSpeakerRepository(db),
			Engagements: inmemdb.NewEngagementRepository(db),
		}, nil
	}

	if migrate {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, errors.Wrap(err, "creating database")
		}
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if migrate {
		if err = database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "migrating database")
		}
	}

	return &Store{
		DB:          db,
		Tx:          database.NewTransactor(db),
		Users:       sqlxrepos.NewUserRepository(db),
		Societies:   sqlxrepos.NewSocietyRepository(db),
		Events:      sqlxrepos.NewEventRepository(db),
		Modules:     sqlxrepos.NewModuleRepository(db),
		Speakers:    sqlxrepos.NewSpeakerRepository(db),
		Engagements: sqlxrepos.NewEngagementRepository(db),
		close:       db.Close,
	}, nil
}

// NewMailService prints the emails in debug mode and sends them with sendgrid otherwise.
func NewMailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}
