package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/relaypoint/relaypoint/agent"
	"github.com/relaypoint/relaypoint/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "relaypoint", "namespace used in storage")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "redis", "implementation of underline storage")
	cmd.Flags().String("broker-impl", "redis", "implementation of underline broker")
	cmd.Flags().String("sqlite-path", "relaypoint.db", "path to sqlite database file")
	cmd.Flags().Int("poll-interval-ms", 1000, "outbox publisher poll interval in milliseconds")
	cmd.Flags().Int("batch-size", 50, "outbox publisher batch size")
	cmd.Flags().Int("publish-retries", 3, "max publish retries per outbox batch")
	cmd.Flags().Int("claim-timeout-ms", 30000, "age after which a claimed outbox entry is reverted to pending")
	cmd.Flags().Int("partitions", 8, "number of broker partitions")
	cmd.Flags().String("group-id", "relay-stage-consumers", "consumer group id")
	cmd.Flags().String("smtp-host", "", "smtp host for email actions")
	cmd.Flags().Int("smtp-port", 587, "smtp port for email actions")
	cmd.Flags().String("smtp-username", "", "smtp username")
	cmd.Flags().String("smtp-password", "", "smtp password")
	cmd.Flags().String("smtp-from", "", "from address for email actions")
	cmd.Flags().String("solana-rpc-url", "", "solana rpc endpoint for sendSol actions")
	cmd.Flags().String("solana-private-key", "", "base58 private key of the sending wallet")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.BrokerType = config.BrokerType(viper.GetString("broker-impl"))
	c.cfg.SqliteConfig.Path = viper.GetString("sqlite-path")
	c.cfg.Partitions = viper.GetInt("partitions")
	c.cfg.PublisherConfig.PollInterval = time.Duration(viper.GetInt("poll-interval-ms")) * time.Millisecond
	c.cfg.PublisherConfig.BatchSize = viper.GetInt("batch-size")
	c.cfg.PublisherConfig.MaxRetries = uint64(viper.GetInt("publish-retries"))
	c.cfg.PublisherConfig.ClaimTimeout = time.Duration(viper.GetInt("claim-timeout-ms")) * time.Millisecond
	c.cfg.ConsumerConfig.GroupId = viper.GetString("group-id")
	c.cfg.SmtpConfig.Host = viper.GetString("smtp-host")
	c.cfg.SmtpConfig.Port = viper.GetInt("smtp-port")
	c.cfg.SmtpConfig.Username = viper.GetString("smtp-username")
	c.cfg.SmtpConfig.Password = viper.GetString("smtp-password")
	c.cfg.SmtpConfig.From = viper.GetString("smtp-from")
	c.cfg.SolanaConfig.RpcUrl = viper.GetString("solana-rpc-url")
	c.cfg.SolanaConfig.PrivateKey = viper.GetString("solana-private-key")
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	var err error
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		panic(err)
	}
	err = agent.Start()
	if err != nil {
		panic(err)
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "relaypoint",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
