package stream

import (
	"crypto/tls"
	"log/slog"

	"github.com/arianpg/mikaboshi/internal/config"
)

func NewSourceFromConfig(cfg config.Config, tlsCfg *tls.Config, sessionID string, logger *slog.Logger) *GRPCSource {
	return NewGRPCSource(GRPCSourceOptions{
		Addr:      config.StripScheme(cfg.UpstreamGRPCAddr),
		TLSConfig: tlsCfg,
		Token:     cfg.Token,
		Method:    cfg.SubscribeMethod,
		SessionID: sessionID,
		Compress:  cfg.Compression,
		Codec:     cfg.Codec,
	}, logger)
}
