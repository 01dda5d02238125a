package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"quizgame-service/internal/domain"
	"quizgame-service/internal/infra/postgres"
	"quizgame-service/internal/quizbank"
)

// NewSeedCmd installs demo users, an organization with a group, and a sample quiz.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo data into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := runMigrations(cmd.Context(), db, log); err != nil {
				return err
			}

			store := postgres.NewStore(db)
			ids, err := seed(cmd.Context(), store)
			if err != nil {
				return err
			}
			log.Info("seeded demo data", "quiz", ids.quiz, "host", ids.host, "group", ids.group)
			return nil
		},
	}
}

type seedStore interface {
	CreateUser(ctx context.Context, username string) (domain.User, error)
	UserByName(ctx context.Context, username string) (domain.User, error)
	CreateOrganization(ctx context.Context, name string) (domain.Organization, error)
	CreateGroup(ctx context.Context, orgID int64, name string) (domain.Group, error)
	CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
}

type seeded struct {
	host, quiz, group int64
}

func seed(ctx context.Context, store seedStore) (seeded, error) {
	var users []domain.User
	for _, name := range []string{"host", "alice", "bob"} {
		u, err := store.CreateUser(ctx, name)
		if errors.Is(err, domain.ErrConflict) {
			u, err = store.UserByName(ctx, name)
		}
		if err != nil {
			return seeded{}, err
		}
		users = append(users, u)
	}
	org, err := store.CreateOrganization(ctx, "Demo organization")
	if err != nil {
		return seeded{}, err
	}
	group, err := store.CreateGroup(ctx, org.ID, "Demo group")
	if err != nil {
		return seeded{}, err
	}
	quiz, err := quizbank.Build(quizbank.Sample(users[0].ID), time.Now())
	if err != nil {
		return seeded{}, err
	}
	quiz, err = store.CreateQuiz(ctx, quiz)
	if err != nil {
		return seeded{}, err
	}
	return seeded{host: users[0].ID, quiz: quiz.ID, group: group.ID}, nil
}
