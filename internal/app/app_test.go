package app

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"ethtrader/internal/apperr"
	"ethtrader/internal/chain"
	"ethtrader/internal/config"
	"ethtrader/internal/testutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== Contract addresses ==========

func TestContractAddresses_DefaultsToMainnet(t *testing.T) {
	a, err := contractAddresses(&config.ContractsConfig{})
	require.NoError(t, err)
	assert.Equal(t, chain.MainnetAddresses(), a)
}

func TestContractAddresses_Overrides(t *testing.T) {
	weth := "0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14"
	feed := "0x694AA1769357215DE4FAC081bf1f309aDC325306"

	a, err := contractAddresses(&config.ContractsConfig{
		WETH:        " " + weth + " ",
		V3Quoter:    "0xEd1f6473345F45b75F8179591dd5bA1888cf2FB3",
		FeeTiers:    []uint32{500, 3000},
		OracleFeeds: map[string]string{weth: feed},
	})
	require.NoError(t, err)

	mainnet := chain.MainnetAddresses()
	assert.Equal(t, common.HexToAddress(weth), a.WETH)
	assert.Equal(t, common.HexToAddress("0xEd1f6473345F45b75F8179591dd5bA1888cf2FB3"), a.V3Quoter)
	assert.Equal(t, mainnet.USDC, a.USDC)
	assert.Equal(t, mainnet.V2Router, a.V2Router)
	assert.Equal(t, []uint32{500, 3000}, a.FeeTiers)

	got, ok := a.Feed(common.HexToAddress(weth))
	assert.True(t, ok)
	assert.Equal(t, common.HexToAddress(feed), got)
	_, ok = a.Feed(mainnet.WBTC)
	assert.False(t, ok, "configured feeds replace the built-in set")
}

func TestContractAddresses_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ContractsConfig
	}{
		{"router", config.ContractsConfig{V2Router: "0x1234"}},
		{"feed_key", config.ContractsConfig{OracleFeeds: map[string]string{"weth": "0x694AA1769357215DE4FAC081bf1f309aDC325306"}}},
		{"feed_value", config.ContractsConfig{OracleFeeds: map[string]string{"0x694AA1769357215DE4FAC081bf1f309aDC325306": "nope"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := contractAddresses(&tt.cfg)
			require.Error(t, err)
			assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
		})
	}
}

func TestGweiToWei(t *testing.T) {
	assert.Equal(t, "30000000000", gweiToWei(30).String())
	assert.Equal(t, "0", gweiToWei(0).String())
}

// ========== Build ==========

func TestBuild_RejectsInvalidConfig(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Ethereum.RPCURLs = nil

	c, cleanup, err := Build(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.NotPanics(t, cleanup)
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}

// ========== App ==========

type fakeServer struct {
	startErr error
	stopped  chan struct{}
}

func (s *fakeServer) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	<-s.stopped
	return http.ErrServerClosed
}

func (s *fakeServer) Shutdown(context.Context) error {
	close(s.stopped)
	return nil
}

func TestApp_StartShutdown(t *testing.T) {
	srv := &fakeServer{stopped: make(chan struct{})}
	a := New(testutil.NewLogger(), srv)

	require.NoError(t, a.Start())
	require.NoError(t, a.Shutdown(context.Background()))

	select {
	case err := <-a.Errors():
		t.Fatalf("unexpected server error: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestApp_ListenFailureIsReported(t *testing.T) {
	boom := errors.New("address already in use")
	a := New(testutil.NewLogger(), &fakeServer{startErr: boom, stopped: make(chan struct{})})

	require.NoError(t, a.Start())

	select {
	case err := <-a.Errors():
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("listener failure was not reported")
	}
}
