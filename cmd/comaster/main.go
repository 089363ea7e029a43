package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samsamfire/gocanopen-master/pkg/config"
	"github.com/samsamfire/gocanopen-master/pkg/network"
	"github.com/samsamfire/gocanopen-master/pkg/nmt"
	n "github.com/samsamfire/gocanopen-master/pkg/node"
	log "github.com/sirupsen/logrus"

	_ "github.com/samsamfire/gocanopen-master/pkg/can/socketcan"
	_ "github.com/samsamfire/gocanopen-master/pkg/can/socketcanv2"
	_ "github.com/samsamfire/gocanopen-master/pkg/can/socketcanv3"
	_ "github.com/samsamfire/gocanopen-master/pkg/can/virtual"
)

var DEFAULT_NODE_ID = 0x20
var DEFAULT_CAN_INTERFACE = "socketcan"
var DEFAULT_CAN_CHANNEL = "can0"

const usage = `usage : comaster [flags] <command> [args]

commands :
  nmt <ENTER-OPERATIONAL|ENTER-STOPPED|ENTER-PREOPERATIONAL|RESET-NODE|RESET-COMMUNICATION>
  read <index> <subindex> [1|2|4]
  write <index> <subindex> <value> <1|2|4>
  heartbeat [count]
  identity
`

func main() {
	// Command line arguments
	configPath := flag.String("c", "", "configuration file (.ini or .toml)")
	canInterface := flag.String("i", DEFAULT_CAN_INTERFACE, "can interface e.g. socketcan,socketcanv2,socketcanv3,virtual")
	channel := flag.String("ch", DEFAULT_CAN_CHANNEL, "can channel e.g. can0,vcan0")
	nodeId := flag.Int("n", DEFAULT_NODE_ID, "node id")
	timeout := flag.Duration("t", 5*time.Second, "overall command timeout")
	verbose := flag.Bool("v", false, "debug logs")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	settings := config.Default()
	if *configPath != "" {
		var err error
		settings, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("[CONFIG] %v", err)
		}
	} else {
		settings.Bus.Interface = *canInterface
		settings.Bus.Channel = *channel
	}
	id := uint8(*nodeId)
	nodeSettings, ok := settings.Nodes[id]
	if !ok {
		nodeSettings = settings.Defaults
	}

	net := network.NewNetwork(nil)
	err := net.ConnectWithSettings(settings.Bus)
	if err != nil {
		log.Fatalf("[NETWORK] %v", err)
	}
	defer net.Disconnect()
	node, err := net.AddNode(id, nodeSettings)
	if err != nil {
		log.Errorf("[NETWORK] %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	err = run(ctx, node, flag.Arg(0), flag.Args()[1:])
	if err != nil {
		log.Errorf("%v : %v", flag.Arg(0), err)
	}
}

func parseUint(s string, bitSize int) (uint64, error) {
	return strconv.ParseUint(s, 0, bitSize)
}

func parseObject(args []string) (uint16, uint8, error) {
	if len(args) < 2 {
		return 0, 0, fmt.Errorf("expecting index and subindex")
	}
	index, err := parseUint(args[0], 16)
	if err != nil {
		return 0, 0, err
	}
	subindex, err := parseUint(args[1], 8)
	if err != nil {
		return 0, 0, err
	}
	return uint16(index), uint8(subindex), nil
}

func run(ctx context.Context, node *n.Node, command string, args []string) error {
	switch command {
	case "nmt":
		if len(args) < 1 {
			return fmt.Errorf("expecting nmt command")
		}
		cmd, err := nmt.ParseCommand(strings.ToUpper(args[0]))
		if err != nil {
			return err
		}
		return node.SendNMT(cmd)

	case "read":
		index, subindex, err := parseObject(args)
		if err != nil {
			return err
		}
		size := "raw"
		if len(args) > 2 {
			size = args[2]
		}
		var value any
		switch size {
		case "1":
			value, err = node.ReadUint8(ctx, index, subindex)
		case "2":
			value, err = node.ReadUint16(ctx, index, subindex)
		case "4":
			value, err = node.ReadUint32(ctx, index, subindex)
		default:
			value, err = node.ReadRaw(ctx, index, subindex)
		}
		if err != nil {
			return err
		}
		fmt.Printf("x%x:x%x = %v\n", index, subindex, value)
		return nil

	case "write":
		index, subindex, err := parseObject(args)
		if err != nil {
			return err
		}
		if len(args) < 4 {
			return fmt.Errorf("expecting value and size")
		}
		switch args[3] {
		case "1":
			value, err := parseUint(args[2], 8)
			if err != nil {
				return err
			}
			return node.WriteUint8(ctx, index, subindex, uint8(value))
		case "2":
			value, err := parseUint(args[2], 16)
			if err != nil {
				return err
			}
			return node.WriteUint16(ctx, index, subindex, uint16(value))
		case "4":
			value, err := parseUint(args[2], 32)
			if err != nil {
				return err
			}
			return node.WriteUint32(ctx, index, subindex, uint32(value))
		default:
			return fmt.Errorf("invalid size %v", args[3])
		}

	case "heartbeat":
		count := uint64(1)
		if len(args) > 0 {
			var err error
			count, err = parseUint(args[0], 32)
			if err != nil {
				return err
			}
		}
		for i := uint64(0); i < count; i++ {
			state, err := node.Heartbeat(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("x%x : %v\n", node.GetID(), state)
			time.Sleep(100 * time.Millisecond)
		}
		return nil

	case "identity":
		identity, err := node.Configurator().ReadIdentity(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("vendor x%x product x%x revision x%x serial x%x\n",
			identity.VendorId, identity.ProductCode, identity.RevisionNumber, identity.SerialNumber)
		return nil
	}
	return fmt.Errorf("unknown command")
}
