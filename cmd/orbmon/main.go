package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/orb.go/pkg/bridge/mqtt"
	"github.com/robotalks/orb.go/pkg/framework"
	"github.com/robotalks/orb.go/pkg/mcu/codec"
)

var (
	mqttURL = "mqtt://localhost:1883/orb/"
	node    = "+"
)

func init() {
	if val := os.Getenv("ORB_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&node, "node", node, "Node to monitor, + for all.")
}

func printMessage(topic string, payload []byte) {
	if strings.HasSuffix(topic, "/status") {
		log.Printf("%s: %s", topic, string(payload))
		return
	}
	msg, err := codec.Decode(payload)
	if err != nil {
		log.Printf("%s: bad message: %v", topic, err)
		return
	}
	log.Printf("%s: %s", topic, msg)
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	token := q.Connect()
	if token.Wait(); token.Error() != nil {
		log.Fatalln(token.Error())
	}
	defer q.Close()

	for _, topic := range []string{node + "/msg/+", node + "/cmd", node + "/status"} {
		q.Sub(topic, printMessage)
	}
	framework.NewRunner().HandleSignals().Go(framework.RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})).Wait()
}
