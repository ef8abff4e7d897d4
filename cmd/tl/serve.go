package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"teamline/internal/app"
	"teamline/internal/config"
	"teamline/internal/domain"
	"teamline/internal/engine"
	"teamline/internal/events"
	"teamline/internal/repo"
	"teamline/internal/server"
)

func expCmd() *cobra.Command {
	e := &cobra.Command{Use: "exp", Short: "Experience and levels"}
	e.AddCommand(expShowCmd())
	return e
}

func expShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [user]",
		Short: "Show a user's experience per specialization (default: the actor)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := viper.GetString("actor-id")
			if len(args) == 1 {
				userID = args[0]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ExperienceProfile(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				tw := newTable("Specialization", "Exp", "Level", "Progress", "To next level")
				for _, s := range p.Standings {
					tw.AppendRow([]any{s.Specialization, s.Exp, s.Level, fmt.Sprintf("%d%%", s.Progress), s.ToNextLevel})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func rankCmd() *cobra.Command {
	var spec string
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank members as assignees for a specialization",
		Long:  "Orders by level in the specialization, then fewest open tasks, then user id. The first row is the recommendation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				items, err := e.RankAssignees(ctx, projectID, spec)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("", "User", "Level", "Exp", "Open tasks")
				for _, r := range items {
					mark := ""
					if r.Recommended {
						mark = "*"
					}
					tw.AppendRow([]any{mark, r.UserID, r.Level, r.Exp, r.OpenTasks})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&spec, "specialization", config.DefaultSpecialization, "specialization to rank for")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Everything that changed: projects, members, sprints, tasks and awards.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				items, err := e.Repo.LatestEvents(ctx, n, 0, projectID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Time", "Type", "Entity", "Actor", "Payload")
				for _, evt := range items {
					tw.AppendRow([]any{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP API"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyDeleteCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the actor; the key is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := make([]byte, 24)
			if _, err := rand.Read(raw); err != nil {
				return err
			}
			secret := "tl_" + hex.EncodeToString(raw)
			key := domain.APIKey{
				ID:        uuid.NewString(),
				ActorID:   viper.GetString("actor-id"),
				Name:      name,
				KeyHash:   repo.HashAPIKey(secret),
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": secret})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys of the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := viper.GetString("actor-id")
			if all {
				actor = ""
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Actor", "Name", "Created")
				for _, k := range items {
					tw.AppendRow([]any{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list keys of every actor")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted API key %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the actor (needs TEAMLINE_JWT_SECRET)",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := server.SignToken(viper.GetString("jwt-secret"), viper.GetString("actor-id"), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for none)")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, natsURL, subjectPrefix string
	var legacyHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long:  "Serves the API and, when --nats-url is set, relays new events to NATS subjects <prefix>.<project>.<type>.",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" && !legacyHeader {
				return fmt.Errorf("TEAMLINE_JWT_SECRET is required for bearer auth")
			}
			if natsURL == "" {
				natsURL = viper.GetString("nats-url")
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx := cmd.Context()
			conn, err := app.Open(ctx, viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer conn.Close()
			e := engine.New(conn, logger)

			if natsURL != "" {
				nc, err := nats.Connect(natsURL, nats.Name("teamline-relay"))
				if err != nil {
					return fmt.Errorf("connect nats: %w", err)
				}
				defer nc.Drain()
				relay := &events.Relay{
					Repo:     e.Repo,
					Conn:     nc,
					Prefix:   subjectPrefix,
					Logger:   logger.Named("relay"),
					Interval: time.Second,
				}
				go relay.Run(ctx)
				logger.Info("event relay started", zap.String("nats_url", natsURL), zap.String("prefix", subjectPrefix))
			}

			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Logger:   logger.Named("http"),
				Auth: server.AuthConfig{
					JWTSecret:              secret,
					AllowLegacyActorHeader: legacyHeader,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Teamline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
				addr, basePath, strings.TrimSuffix(basePath, "/"))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server for the event relay (env TEAMLINE_NATS_URL)")
	cmd.Flags().StringVar(&subjectPrefix, "subject-prefix", config.DefaultRelaySubjectPrefix, "NATS subject prefix for relayed events")
	cmd.Flags().BoolVar(&legacyHeader, "allow-actor-header", false, "accept X-Actor-Id without credentials (development only)")
	return cmd
}
