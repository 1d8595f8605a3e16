// auctioncli is an interactive terminal client for the auction server.
//
// It keeps a local, advisory view of the active lots built from broadcast
// events; the server remains the only authority on bids and winners.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
)

type lotInfo struct {
	Name         string
	Owner        string
	MinimumPrice float64
	CurrentBid   float64
}

type client struct {
	name string
	conn net.Conn

	mu   sync.Mutex
	lots map[string]lotInfo // keyed by "owner:name"
}

func main() {
	addr := flag.String("addr", "localhost:8888", "auction server address")
	flag.Parse()

	fmt.Print("Enter your name: ")
	stdin := bufio.NewScanner(os.Stdin)
	if !stdin.Scan() {
		return
	}
	name := strings.TrimSpace(stdin.Text())

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	c := &client{name: name, conn: conn, lots: make(map[string]lotInfo)}

	fmt.Fprintf(conn, "%s\n", name)
	server := bufio.NewScanner(conn)

	// First reply is either a handshake rejection or the snapshot.
	if !server.Scan() {
		fmt.Fprintln(os.Stderr, "connection closed by server")
		os.Exit(1)
	}
	first := server.Text()
	if strings.HasPrefix(first, "ERROR:") {
		fmt.Println(first)
		os.Exit(1)
	}
	c.handleServerLine(first)

	go func() {
		for server.Scan() {
			c.handleServerLine(server.Text())
		}
		fmt.Println("\nDisconnected from server")
		os.Exit(0)
	}()

	c.commandLoop(stdin)
}

func (c *client) commandLoop(stdin *bufio.Scanner) {
	fmt.Println("\nCommands:")
	fmt.Println("  sell <product_name> <minimum_price> - put a product up for auction")
	fmt.Println("  bid <owner:name> <amount>           - bid on a product")
	fmt.Println("  list                                - list known products")
	fmt.Println("  exit                                - quit")

	for {
		fmt.Print("\n> ")
		if !stdin.Scan() {
			return
		}
		input := strings.TrimSpace(stdin.Text())

		switch {
		case input == "":
		case strings.EqualFold(input, "exit"):
			return
		case strings.EqualFold(input, "list"):
			c.printLots()
		case strings.HasPrefix(input, "sell "):
			c.doSell(strings.TrimPrefix(input, "sell "))
		case strings.HasPrefix(input, "bid "):
			c.doBid(strings.TrimPrefix(input, "bid "))
		default:
			fmt.Println("Unknown command:", input)
		}
	}
}

func (c *client) doSell(args string) {
	parts := strings.SplitN(args, " ", 2)
	if len(parts) != 2 {
		fmt.Println("Usage: sell <product_name> <minimum_price>")
		return
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		fmt.Println("Invalid price format. Use a decimal number.")
		return
	}
	fmt.Fprintf(c.conn, "SELL:%s:%v\n", parts[0], price)
}

func (c *client) doBid(args string) {
	parts := strings.SplitN(args, " ", 2)
	if len(parts) != 2 {
		fmt.Println("Usage: bid <owner:name> <amount>")
		return
	}
	amount, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		fmt.Println("Invalid bid amount format. Use a decimal number.")
		return
	}
	fmt.Fprintf(c.conn, "BID:%s:%v\n", parts[0], amount)
}

func (c *client) handleServerLine(line string) {
	switch {
	case strings.HasPrefix(line, "PRODUCT_LIST:"):
		c.handleProductList(strings.TrimPrefix(line, "PRODUCT_LIST:"))
	case strings.HasPrefix(line, "NEW_PRODUCT:"):
		c.handleNewProduct(strings.TrimPrefix(line, "NEW_PRODUCT:"))
	case strings.HasPrefix(line, "BID_UPDATE:"):
		c.handleBidUpdate(strings.TrimPrefix(line, "BID_UPDATE:"))
	case strings.HasPrefix(line, "AUCTION_END:"):
		c.handleAuctionEnd(strings.TrimPrefix(line, "AUCTION_END:"))
	case strings.HasPrefix(line, "ERROR:"):
		fmt.Println("\nServer error:", strings.TrimSpace(strings.TrimPrefix(line, "ERROR:")))
	default:
		fmt.Println("\nServer message:", line)
	}
}

func (c *client) handleProductList(data string) {
	c.mu.Lock()
	c.lots = make(map[string]lotInfo)
	if data != "EMPTY" {
		for _, entry := range strings.Split(data, ";") {
			fields := strings.Split(entry, ",")
			if len(fields) < 4 {
				continue
			}
			min, _ := strconv.ParseFloat(fields[2], 64)
			bid, _ := strconv.ParseFloat(fields[3], 64)
			info := lotInfo{Name: fields[0], Owner: fields[1], MinimumPrice: min, CurrentBid: bid}
			c.lots[info.Owner+":"+info.Name] = info
		}
	}
	c.mu.Unlock()
	c.printLots()
}

func (c *client) handleNewProduct(data string) {
	fields := strings.Split(data, ":")
	if len(fields) < 3 {
		return
	}
	min, _ := strconv.ParseFloat(fields[2], 64)
	info := lotInfo{Name: fields[0], Owner: fields[1], MinimumPrice: min, CurrentBid: min}

	c.mu.Lock()
	c.lots[info.Owner+":"+info.Name] = info
	c.mu.Unlock()

	fmt.Printf("\nNew product: %s (owner %s), starting price %.2f\n", info.Name, info.Owner, min)
}

func (c *client) handleBidUpdate(data string) {
	fields := strings.Split(data, ":")
	if len(fields) < 3 {
		return
	}
	amount, _ := strconv.ParseFloat(fields[2], 64)

	c.mu.Lock()
	for id, info := range c.lots {
		if info.Name == fields[0] {
			info.CurrentBid = amount
			c.lots[id] = info
			break
		}
	}
	c.mu.Unlock()

	fmt.Printf("\nBid update: %s bid %.2f on %s\n", fields[1], amount, fields[0])
}

func (c *client) handleAuctionEnd(data string) {
	fields := strings.Split(data, ":")
	if len(fields) < 4 {
		return
	}
	name, owner, winner := fields[0], fields[1], fields[2]
	final, _ := strconv.ParseFloat(fields[3], 64)

	c.mu.Lock()
	delete(c.lots, owner+":"+name)
	c.mu.Unlock()

	if winner == "NO_WINNER" {
		fmt.Printf("\nAuction ended for %s (owner %s): no winner\n", name, owner)
	} else {
		fmt.Printf("\nAuction ended for %s (owner %s): winner %s at %.2f\n", name, owner, winner, final)
	}
}

func (c *client) printLots() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.lots) == 0 {
		fmt.Println("No products currently available for bidding.")
		return
	}
	fmt.Println("\nCurrent products:")
	for id, info := range c.lots {
		fmt.Printf("  %s: minimum %.2f, current bid %.2f\n", id, info.MinimumPrice, info.CurrentBid)
	}
}
