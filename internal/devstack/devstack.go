// Package devstack starts the service's dependencies in containers for local development and
// integration tests: MariaDB, Authorizer, Redis and NATS, plus optionally the server itself.
package devstack

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const (
	dbAlias         = "mariadb"
	authzAlias      = "authorizer"
	redisAlias      = "redis"
	natsAlias       = "nats"
	serverImageName = "eagleview-dev:latest"
)

// Options configure the stack. Zero values take the defaults from OptionsFromEnv.
type Options struct {
	DBImage        string
	DBRootPassword string
	DBDatabase     string
	DBUser         string
	DBPassword     string

	AuthzImage       string
	AuthzDatabase    string
	AuthzClientID    string
	AuthzAdminSecret string
	AuthzPort        string

	RedisImage string
	NATSImage  string

	// WithServer also builds (if needed) and runs the eagleview image
	WithServer   bool
	ServerPort   string
	BuildContext string
	Debug        bool
}

// OptionsFromEnv reads the stack settings from the environment
func OptionsFromEnv() Options {
	return Options{
		DBImage:          getEnv("DB_IMAGE", "mariadb:11"),
		DBRootPassword:   getEnv("DB_ROOT_PASSWORD", "root-secret"),
		DBDatabase:       getEnv("DB_DATABASE", "eagleview"),
		DBUser:           getEnv("DB_USER", "eagleview"),
		DBPassword:       getEnv("DB_PASSWORD", "eagleview-secret"),
		AuthzImage:       getEnv("AUTHZ_IMAGE", "lakhansamani/authorizer:latest"),
		AuthzDatabase:    getEnv("AUTHZ_DATABASE", "authorizer"),
		AuthzClientID:    getEnv("AUTHZ_CLIENT_ID", "eagleview-dev"),
		AuthzAdminSecret: getEnv("AUTHZ_ADMIN_SECRET", "admin-secret"),
		AuthzPort:        getEnv("AUTHZ_PORT", "8080"),
		RedisImage:       getEnv("REDIS_IMAGE", "redis:7-alpine"),
		NATSImage:        getEnv("NATS_IMAGE", "nats:2"),
		ServerPort:       getEnv("PORT", "3000"),
		BuildContext:     getEnv("DEVSTACK_BUILD_CONTEXT", "."),
		Debug:            os.Getenv("DEBUG_CONTAINER") == "true",
	}
}

// Stack is a running set of containers
type Stack struct {
	Network    *testcontainers.DockerNetwork
	DB         testcontainers.Container
	Authorizer testcontainers.Container
	Redis      testcontainers.Container
	NATS       testcontainers.Container
	Server     testcontainers.Container

	// Env is the configuration a server on the host uses to reach the stack
	Env map[string]string

	log *zap.Logger
}

// Terminate stops every container and removes the network
func (s *Stack) Terminate(ctx context.Context) error {
	var errs []error
	for _, c := range []testcontainers.Container{s.Server, s.NATS, s.Redis, s.Authorizer, s.DB} {
		if c != nil {
			if err := c.Terminate(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if s.Network != nil {
		if err := s.Network.Remove(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove network: %w", err))
		}
	}
	return errors.Join(errs...)
}

// WriteEnv writes Env as a .env file for the server and CLI
func (s *Stack) WriteEnv(path string) error {
	return godotenv.Write(s.Env, path)
}

// Start brings the stack up. On failure everything already started is terminated.
func Start(ctx context.Context, opts Options, log *zap.Logger) (*Stack, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Stack{Env: make(map[string]string), log: log}

	if err := s.start(ctx, opts); err != nil {
		if terr := s.Terminate(context.Background()); terr != nil {
			log.Warn("failed to clean up devstack", zap.Error(terr))
		}
		return nil, err
	}
	return s, nil
}

func (s *Stack) start(ctx context.Context, opts Options) error {
	nw, err := network.New(ctx)
	if err != nil {
		return fmt.Errorf("failed to create network: %w", err)
	}
	s.Network = nw

	if err := s.startDB(ctx, opts); err != nil {
		return err
	}
	if err := s.startAuthorizer(ctx, opts); err != nil {
		return err
	}
	if err := s.startRedis(ctx, opts); err != nil {
		return err
	}
	if err := s.startNATS(ctx, opts); err != nil {
		return err
	}
	if opts.WithServer {
		return s.startServer(ctx, opts)
	}
	return nil
}

func (s *Stack) aliases(alias string) map[string][]string {
	return map[string][]string{s.Network.Name: {alias}}
}

func (s *Stack) startDB(ctx context.Context, opts Options) error {
	port := nat.Port("3306/tcp")
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:          opts.DBImage,
			ExposedPorts:   []string{string(port)},
			Env:            map[string]string{"MARIADB_ROOT_PASSWORD": opts.DBRootPassword},
			WaitingFor:     wait.ForListeningPort(port).WithStartupTimeout(60 * time.Second),
			Networks:       []string{s.Network.Name},
			NetworkAliases: s.aliases(dbAlias),
		},
		Started: true,
	})
	if err != nil {
		return fmt.Errorf("failed to start database: %w", err)
	}
	s.DB = c

	host, err := c.Host(ctx)
	if err != nil {
		return err
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		return err
	}
	if err := initDatabase(ctx, opts, host, mapped.Port()); err != nil {
		return err
	}

	s.Env["BACKEND"] = "remote"
	s.Env["DB_TYPE"] = "mysql"
	s.Env["DB_HOST"] = host
	s.Env["DB_PORT"] = mapped.Port()
	s.Env["DB_DATABASE"] = opts.DBDatabase
	s.Env["DB_USER"] = opts.DBUser
	s.Env["DB_PASSWORD"] = opts.DBPassword
	s.log.Info("database ready", zap.String("addr", host+":"+mapped.Port()))
	return nil
}

// initDatabase creates the app and Authorizer databases and the app user
func initDatabase(ctx context.Context, opts Options, host, port string) error {
	dsn := (&mysql.Config{
		User:                 "root",
		Passwd:               opts.DBRootPassword,
		Net:                  "tcp",
		Addr:                 host + ":" + port,
		AllowNativePasswords: true,
	}).FormatDSN()

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database for setup: %w", err)
	}
	defer db.Close()

	// the port opens before the server accepts logins
	ready := backoff.WithContext(backoff.NewConstantBackOff(time.Second), ctx)
	if err := backoff.Retry(func() error { return db.PingContext(ctx) }, backoff.WithMaxRetries(ready, 30)); err != nil {
		return fmt.Errorf("database not ready after 30 seconds: %w", err)
	}

	statements := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", opts.DBDatabase),
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", opts.AuthzDatabase),
		fmt.Sprintf("CREATE USER IF NOT EXISTS '%s'@'%%' IDENTIFIED BY '%s'", opts.DBUser, opts.DBPassword),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON `%s`.* TO '%s'@'%%'", opts.DBDatabase, opts.DBUser),
		"FLUSH PRIVILEGES",
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w : when executing > %s", err, strings.SplitN(stmt, " IDENTIFIED", 2)[0])
		}
	}
	return nil
}

func (s *Stack) startAuthorizer(ctx context.Context, opts Options) error {
	port, err := nat.NewPort("tcp", opts.AuthzPort)
	if err != nil {
		return fmt.Errorf("failed to create Authorizer port: %w", err)
	}
	logLevel := "info"
	if opts.Debug {
		logLevel = "debug"
	}
	dbURL := (&mysql.Config{
		User:   "root",
		Passwd: opts.DBRootPassword,
		Net:    "tcp",
		Addr:   dbAlias + ":3306",
		DBName: opts.AuthzDatabase,
	}).FormatDSN()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        opts.AuthzImage,
			ExposedPorts: []string{string(port)},
			Env: map[string]string{
				"ENV":           "production",
				"CLIENT_ID":     opts.AuthzClientID,
				"PORT":          opts.AuthzPort,
				"DATABASE_TYPE": "mariadb",
				"DATABASE_NAME": opts.AuthzDatabase,
				"DATABASE_URL":  dbURL,
				"ADMIN_SECRET":  opts.AuthzAdminSecret,
				"ROLES":         "user",
				"DEFAULT_ROLES": "user",
				"LOG_LEVEL":     logLevel,
			},
			WaitingFor:     wait.ForLog("Authorizer running at PORT:").WithStartupTimeout(30 * time.Second),
			Networks:       []string{s.Network.Name},
			NetworkAliases: s.aliases(authzAlias),
		},
		Started: true,
	})
	if err != nil {
		return fmt.Errorf("failed to start Authorizer: %w", err)
	}
	s.Authorizer = c

	url, err := mappedURL(ctx, c, port, "http")
	if err != nil {
		return err
	}
	s.Env["AUTHZ_URL"] = url
	s.Env["AUTHZ_CLIENT_ID"] = opts.AuthzClientID
	s.log.Info("authorizer ready", zap.String("url", url))
	return nil
}

func (s *Stack) startRedis(ctx context.Context, opts Options) error {
	port := nat.Port("6379/tcp")
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:          opts.RedisImage,
			ExposedPorts:   []string{string(port)},
			WaitingFor:     wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
			Networks:       []string{s.Network.Name},
			NetworkAliases: s.aliases(redisAlias),
		},
		Started: true,
	})
	if err != nil {
		return fmt.Errorf("failed to start Redis: %w", err)
	}
	s.Redis = c

	host, err := c.Host(ctx)
	if err != nil {
		return err
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		return err
	}
	s.Env["REDIS_ADDR"] = host + ":" + mapped.Port()
	s.log.Info("redis ready", zap.String("addr", s.Env["REDIS_ADDR"]))
	return nil
}

func (s *Stack) startNATS(ctx context.Context, opts Options) error {
	port := nat.Port("4222/tcp")
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:          opts.NATSImage,
			ExposedPorts:   []string{string(port)},
			WaitingFor:     wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
			Networks:       []string{s.Network.Name},
			NetworkAliases: s.aliases(natsAlias),
		},
		Started: true,
	})
	if err != nil {
		return fmt.Errorf("failed to start NATS: %w", err)
	}
	s.NATS = c

	url, err := mappedURL(ctx, c, port, "nats")
	if err != nil {
		return err
	}
	s.Env["FEED_TYPE"] = "nats"
	s.Env["NATS_URL"] = url
	s.log.Info("nats ready", zap.String("url", url))
	return nil
}

// startServer runs the eagleview image inside the stack's network, building it from the
// Dockerfile when it is not already present
func (s *Stack) startServer(ctx context.Context, opts Options) error {
	port, err := nat.NewPort("tcp", opts.ServerPort)
	if err != nil {
		return fmt.Errorf("failed to create server port: %w", err)
	}

	req := testcontainers.ContainerRequest{
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"PORT":            opts.ServerPort,
			"BACKEND":         "remote",
			"DB_TYPE":         "mysql",
			"DB_HOST":         dbAlias,
			"DB_PORT":         "3306",
			"DB_DATABASE":     opts.DBDatabase,
			"DB_USER":         opts.DBUser,
			"DB_PASSWORD":     opts.DBPassword,
			"AUTHZ_URL":       fmt.Sprintf("http://%s:%s", authzAlias, opts.AuthzPort),
			"AUTHZ_CLIENT_ID": opts.AuthzClientID,
			"FEED_TYPE":       "redis",
			"REDIS_ADDR":      redisAlias + ":6379",
			"GEMINI_API_KEY":  os.Getenv("GEMINI_API_KEY"),
		},
		HostConfigModifier: func(hc *container.HostConfig) {
			if opts.Debug {
				hc.CapAdd = []string{"SYS_PTRACE"}
				hc.SecurityOpt = []string{"apparmor:unconfined"}
			}
		},
		WaitingFor:     wait.ForHTTP("/healthz").WithPort(port).WithStartupTimeout(60 * time.Second),
		Networks:       []string{s.Network.Name},
		NetworkAliases: s.aliases("eagleview"),
	}

	exists, err := imageExists(ctx, serverImageName)
	if err != nil {
		return fmt.Errorf("failed to check if image exists: %w", err)
	}
	if exists {
		s.log.Info("reusing server image", zap.String("image", serverImageName))
		req.Image = serverImageName
	} else {
		s.log.Info("building server image", zap.String("image", serverImageName))
		parts := strings.SplitN(serverImageName, ":", 2)
		req.FromDockerfile = testcontainers.FromDockerfile{
			Context:    opts.BuildContext,
			Dockerfile: "Dockerfile",
			Repo:       parts[0],
			Tag:        parts[1],
			KeepImage:  true,
			BuildOptionsModifier: func(bo *build.ImageBuildOptions) {
				bo.Target = "runtime"
			},
			PrintBuildLog: opts.Debug,
		}
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.Server = c

	url, err := mappedURL(ctx, c, port, "http")
	if err != nil {
		return err
	}
	s.Env["BASE_URL"] = url
	s.log.Info("server ready", zap.String("url", url))
	return nil
}

func mappedURL(ctx context.Context, c testcontainers.Container, port nat.Port, scheme string) (string, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", err
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s://%s:%s", scheme, host, mapped.Port()), nil
}

func imageExists(ctx context.Context, imageName string) (bool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return false, err
	}
	defer cli.Close()

	images, err := cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return false, err
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == imageName {
				return true, nil
			}
		}
	}
	return false, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
