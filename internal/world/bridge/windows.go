package bridge

import (
	"context"
	"slices"

	"github.com/jwebster45206/villager-trader/internal/world"
	"github.com/jwebster45206/villager-trader/pkg/geom"
	"github.com/jwebster45206/villager-trader/pkg/trade"
)

type villagerWindow struct {
	WindowID int           `json:"window_id"`
	Trades   []trade.Offer `json:"offers"`
}

type containerWindow struct {
	WindowID int               `json:"window_id"`
	Contents []trade.ItemStack `json:"items"`
}

// OpenVillager opens the trading interface of a villager entity.
func (c *Client) OpenVillager(ctx context.Context, entityID int) (world.TradeWindow, error) {
	var w villagerWindow
	if err := c.call(ctx, MethodOpenVillager, idParams{ID: entityID}, &w); err != nil {
		return nil, err
	}
	return &tradeWindow{client: c, window: w}, nil
}

// OpenContainer opens the storage block at the given position.
func (c *Client) OpenContainer(ctx context.Context, at geom.Position) (world.Container, error) {
	var w containerWindow
	if err := c.call(ctx, MethodOpenContainer, at, &w); err != nil {
		return nil, err
	}
	return &container{client: c, window: w}, nil
}

type tradeWindow struct {
	client *Client
	window villagerWindow
}

func (w *tradeWindow) Offers() []trade.Offer {
	return slices.Clone(w.window.Trades)
}

func (w *tradeWindow) Trade(ctx context.Context, index int) error {
	return w.client.call(ctx, MethodTrade, tradeParams{WindowID: w.window.WindowID, Index: index}, nil)
}

func (w *tradeWindow) Close(ctx context.Context) error {
	return w.client.closeWindow(ctx, w.window.WindowID)
}

type container struct {
	client *Client
	window containerWindow
}

func (c *container) Items() []trade.ItemStack {
	return slices.Clone(c.window.Contents)
}

func (c *container) Deposit(ctx context.Context, kind string, count int) error {
	return c.client.call(ctx, MethodDeposit, transferParams{WindowID: c.window.WindowID, Item: kind, Count: count}, nil)
}

func (c *container) Withdraw(ctx context.Context, kind string, count int) error {
	return c.client.call(ctx, MethodWithdraw, transferParams{WindowID: c.window.WindowID, Item: kind, Count: count}, nil)
}

func (c *container) Close(ctx context.Context) error {
	return c.client.closeWindow(ctx, c.window.WindowID)
}
