// Command domed-logger records dome status in InfluxDB. It follows the
// daemon's status websocket and writes one point per published snapshot, so
// the observatory's dashboards see shutter and heartbeat changes as they
// happen.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"go.uber.org/zap/zapcore"

	"github.com/ashdome-obs/domed/internal/logger"
)

var (
	domedAddr = flag.String("domed", "ws://localhost:9004/api/ws", "domed status websocket URL")
	influxURL = flag.String("influx", "http://localhost:9999", "InfluxDB server URL")
	org       = flag.String("org", "observatory", "InfluxDB organisation")
	bucket    = flag.String("bucket", "dome.raw", "InfluxDB bucket")
)

func main() {
	flag.Parse()
	log := logger.New(zapcore.InfoLevel)
	defer log.Sync()

	client := influxdb2.NewClient(*influxURL, os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	writeAPI := client.WriteApi(*org, *bucket)
	defer writeAPI.Close()

	go func() {
		for err := range writeAPI.Errors() {
			log.Errorf("influx write: %v", err)
		}
	}()

	for {
		if err := follow(writeAPI); err != nil {
			log.Errorf("following %s: %v", *domedAddr, err)
		}
		time.Sleep(time.Second)
	}
}

// follow streams snapshots from the daemon until the connection drops.
func follow(writeAPI api.WriteApi) error {
	defer writeAPI.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(*domedAddr, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	for {
		var snapshot interface{}
		if err := conn.ReadJSON(&snapshot); err != nil {
			return err
		}
		fields := make(map[string]interface{})
		flatten(fields, snapshot, "")
		writeAPI.WritePoint(influxdb2.NewPoint("dome.status", nil, fields, time.Now()))
	}
}

// flatten maps a decoded snapshot to dotted field names.
func flatten(fields map[string]interface{}, value interface{}, prefix string) {
	switch value := value.(type) {
	case map[string]interface{}:
		for k, v := range value {
			flatten(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for i, v := range value {
			flatten(fields, v, fmt.Sprintf("%s.%d", prefix, i))
		}
	default:
		fields[prefix[1:]] = value
	}
}
