package main

import (
	"flag"
	"log"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/EzequielArce/KipuBankV3/internal/vault"
)

func main() {
	amountIn := flag.String("in", "", "input amount in smallest units")
	reserveIn := flag.String("reserve-in", "", "pool reserve of the input asset")
	reserveOut := flag.String("reserve-out", "", "pool reserve of the output asset")
	decimals := flag.Int("decimals", 0, "output asset decimals for display")
	flag.Parse()

	in, ok := new(big.Int).SetString(*amountIn, 10)
	if !ok {
		log.Fatalf("malformed -in %q", *amountIn)
	}
	rin, ok := new(big.Int).SetString(*reserveIn, 10)
	if !ok {
		log.Fatalf("malformed -reserve-in %q", *reserveIn)
	}
	rout, ok := new(big.Int).SetString(*reserveOut, 10)
	if !ok {
		log.Fatalf("malformed -reserve-out %q", *reserveOut)
	}

	out, err := vault.Quote(in, rin, rout)
	if err != nil {
		log.Fatalf("quote: %v", err)
	}

	log.Printf("amount out: %s", out.String())
	if *decimals > 0 {
		log.Printf("display: %s", decimal.NewFromBigInt(out, -int32(*decimals)).String())
	}
}
