package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/logging"
	"github.com/bhanukaranwal/SetuBond/pkg/matching"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/repo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	minPrice = 9500 // in paise of face value, 95.00
	maxPrice = 10500
	minQty   = 1
	maxQty   = 100
)

var instruments = []string{"INE002A08427", "INE040A08377", "INE134E08KL8", "INE752E07OP7"}

func randomOrder(rng *rand.Rand) *model.Order {
	side := model.OrderSideBuy
	if rng.Intn(2) == 0 {
		side = model.OrderSideSell
	}
	price := decimal.New(int64(minPrice+rng.Intn(maxPrice-minPrice+1)), -2)
	return &model.Order{
		ID:           uuid.NewString(),
		AccountID:    fmt.Sprintf("acc-%d", rng.Intn(50)),
		InstrumentID: instruments[rng.Intn(len(instruments))],
		Side:         side,
		Type:         model.OrderTypeLimit,
		TimeInForce:  model.OrderTimeInForceGTC,
		Quantity:     decimal.NewFromInt(int64(rng.Intn(maxQty-minQty+1) + minQty)),
		Price:        decimal.NewNullDecimal(price),
	}
}

func main() {
	var numOrders int
	flag.IntVar(&numOrders, "orders", 200_000, "Number of random limit orders to submit")
	flag.Parse()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	store := repo.NewInMemoryRepo()
	engine := matching.New(matching.Config{}, store, nil, logging.NewNopLogger())

	totalTrades := 0
	totalQty := decimal.Zero
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < numOrders; i++ {
		res, err := engine.Submit(ctx, randomOrder(rng))
		if err != nil {
			fmt.Printf("submit %d failed: %v\n", i, err)
			return
		}
		for _, tr := range res.Trades {
			totalTrades++
			totalQty = totalQty.Add(tr.Quantity)
		}
	}
	elapsed := time.Since(start)

	fmt.Println("--------")
	fmt.Printf("Total Orders     : %d\n", numOrders)
	fmt.Printf("Total Trades     : %d\n", totalTrades)
	fmt.Printf("Total Matched Qty: %s\n", totalQty)
	fmt.Printf("Time Taken       : %s\n", elapsed)
	fmt.Printf("Orders/sec       : %.0f\n", float64(numOrders)/elapsed.Seconds())
}
