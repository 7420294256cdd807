package rpc

import (
	"github.com/ledgerforge/ledgerd/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.RPCS)
