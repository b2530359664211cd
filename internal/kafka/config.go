package kafka

import (
	"fmt"

	"github.com/IBM/sarama"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
)

func newSaramaConfig(conf config.KafkaConfig) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	if conf.Version != "" {
		version, err := sarama.ParseKafkaVersion(conf.Version)
		if err != nil {
			return nil, fmt.Errorf("parse kafka version %q: %w", conf.Version, err)
		}
		cfg.Version = version
	}
	cfg.ClientID = "team-messaging"

	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	return cfg, nil
}
