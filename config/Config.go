package config

import "time"

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_SQLITE StorageType = "sqlite"
const STORAGE_TYPE_INMEM StorageType = "memory"

type BrokerType string

const BROKER_TYPE_REDIS BrokerType = "redis"
const BROKER_TYPE_INMEM BrokerType = "memory"

type Config struct {
	RedisConfig     RedisConfig
	SqliteConfig    SqliteConfig
	HttpPort        int
	StorageType     StorageType
	BrokerType      BrokerType
	Partitions      int
	PublisherConfig PublisherConfig
	ConsumerConfig  ConsumerConfig
	SmtpConfig      SmtpConfig
	SolanaConfig    SolanaConfig
}

type RedisConfig struct {
	Addrs     []string
	Namespace string
}

type SqliteConfig struct {
	Path string
}

type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   uint64
	// ClaimTimeout bounds how long a claimed outbox entry may sit in
	// processing before it is considered abandoned and reverted to pending.
	ClaimTimeout time.Duration
}

type ConsumerConfig struct {
	GroupId string
}

type SmtpConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SolanaConfig struct {
	RpcUrl     string
	PrivateKey string
}
