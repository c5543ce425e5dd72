//go:build integration

package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velmie/softtx"
	"github.com/velmie/softtx/cmd/internal/testutil"
	"github.com/velmie/softtx/rdb"
	"github.com/velmie/softtx/storetest"
)

func TestBedAdminCLIContainer(t *testing.T) {
	ctx := context.Background()
	env := testutil.StartMySQL(t, ctx)

	store, err := rdb.NewStore(env.DB)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))

	pending := storetest.NewLog(storetest.Base)
	spent := storetest.NewLog(storetest.Base.Add(time.Millisecond))
	spent.AsyncDeliveryTryTimes = 3
	require.NoError(t, store.Add(ctx, pending))
	require.NoError(t, store.Add(ctx, spent))

	bin := testutil.BuildBinary(t, ".")

	res := testutil.RunCLI(t, ctx, env, bin, "-dsn", env.DSN, "-json", "exhausted")
	require.Equal(t, 0, res.ExitCode, res.Output)
	require.True(t, strings.Contains(res.Output, spent.ID), res.Output)
	require.False(t, strings.Contains(res.Output, pending.ID), res.Output)

	res = testutil.RunCLI(t, ctx, env, bin, "-dsn", env.DSN, "purge", "-older-than", "24h")
	require.Equal(t, 0, res.ExitCode, res.Output)

	logs, err := store.FindEligibleTransactionLogs(ctx, softtx.Criteria{MaxDeliveryTryTimes: softtx.UnboundedTryTimes, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, pending.ID, logs[0].ID)

	res = testutil.RunCLI(t, ctx, env, bin, "-dsn", env.DSN, "remove", pending.ID)
	require.Equal(t, 0, res.ExitCode, res.Output)

	logs, err = store.FindEligibleTransactionLogs(ctx, softtx.Criteria{MaxDeliveryTryTimes: softtx.UnboundedTryTimes, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, logs)
}
