// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/ledgerforge/ledgerd/logger"
	"github.com/ledgerforge/ledgerd/util/panics"
)

var log, _ = logger.Get(logger.SubsystemTags.LDGR)
var spawn = panics.GoroutineWrapperFunc(log)
var srvrLog, _ = logger.Get(logger.SubsystemTags.SRVR)
