// Command synth publishes synthetic EEG and gyro streams to an MQTT
// broker, for exercising the pipeline without headband hardware. The EEG
// channels carry band-limited sinusoids plus noise so the analyzer's band
// powers land in predictable ranges.
package main

import (
	"context"
	"flag"
	"log"
	"math"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/cortex-data/focus.report/internal/mqttstream"
	"github.com/cortex-data/focus.report/internal/stream"
)

var (
	broker      = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	topicPrefix = flag.String("prefix", mqttstream.DefaultTopicPrefix, "MQTT topic prefix")
	eegRate     = flag.Float64("eeg-rate", 256, "EEG sample rate in Hz")
	gyroRate    = flag.Float64("gyro-rate", 52, "Gyro sample rate in Hz")
	channels    = flag.Int("channels", 4, "EEG channel count")
	alphaFreq   = flag.Float64("alpha", 10, "Dominant sinusoid frequency in Hz")
	amplitude   = flag.Float64("amplitude", 40, "Sinusoid amplitude in microvolts")
	noise       = flag.Float64("noise", 10, "Gaussian noise sigma in microvolts")
	wobble      = flag.Float64("wobble", 5, "Gyro wobble amplitude in deg/s")
	batchPeriod = flag.Duration("batch", 100*time.Millisecond, "Batch publish period")
)

func main() {
	flag.Parse()

	client, err := mqttstream.Connect(mqttstream.Options{
		BrokerURL:   *broker,
		ClientID:    "focus-synth",
		TopicPrefix: *topicPrefix,
	})
	if err != nil {
		log.Fatalf("Failed to connect to broker: %v", err)
	}
	defer client.Close()

	pub := mqttstream.NewPublisher(client)

	eegDesc := stream.Descriptor{
		Name:         "synth-eeg",
		Type:         stream.TypeEEG,
		ChannelCount: *channels,
		NominalRate:  *eegRate,
		ChannelNames: channelNames(*channels),
	}
	gyroDesc := stream.Descriptor{
		Name:         "synth-gyro",
		Type:         stream.TypeMotion,
		ChannelCount: 3,
		NominalRate:  *gyroRate,
	}

	if err := pub.Announce(eegDesc); err != nil {
		log.Fatalf("Failed to announce EEG stream: %v", err)
	}
	if err := pub.Announce(gyroDesc); err != nil {
		log.Fatalf("Failed to announce gyro stream: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go publishLoop(ctx, pub, eegDesc, *batchPeriod, eegSample)
	go publishLoop(ctx, pub, gyroDesc, *batchPeriod, gyroSample)

	<-ctx.Done()

	// Clear the retained descriptors so the analyzer stops resolving us.
	if err := pub.Withdraw(eegDesc.Name); err != nil {
		log.Printf("Failed to withdraw EEG stream: %v", err)
	}
	if err := pub.Withdraw(gyroDesc.Name); err != nil {
		log.Printf("Failed to withdraw gyro stream: %v", err)
	}
	log.Print("synth stopped")
}

func channelNames(n int) []string {
	// Standard four-electrode headband layout, extended generically.
	base := []string{"TP9", "AF7", "AF8", "TP10"}
	if n <= len(base) {
		return base[:n]
	}
	names := append([]string(nil), base...)
	for i := len(base); i < n; i++ {
		names = append(names, "EXT"+string(rune('A'+i-len(base))))
	}
	return names
}

// sampleFn produces one sample vector at time t seconds.
type sampleFn func(rng *rand.Rand, d stream.Descriptor, t float64) []float64

func eegSample(rng *rand.Rand, d stream.Descriptor, t float64) []float64 {
	vec := make([]float64, d.ChannelCount)
	tone := *amplitude * math.Sin(2*math.Pi**alphaFreq*t)
	for ch := range vec {
		vec[ch] = tone + rng.NormFloat64()**noise
	}
	return vec
}

func gyroSample(rng *rand.Rand, d stream.Descriptor, t float64) []float64 {
	// Slow head wobble at ~0.5Hz plus jitter on each axis.
	base := *wobble * math.Sin(2*math.Pi*0.5*t)
	return []float64{
		base + rng.NormFloat64(),
		base*0.5 + rng.NormFloat64(),
		rng.NormFloat64(),
	}
}

func publishLoop(ctx context.Context, pub *mqttstream.Publisher, d stream.Descriptor, period time.Duration, fn sampleFn) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	start := time.Now()
	next := 0.0 // next sample time in seconds since start
	dt := 1.0 / d.NominalRate

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed := time.Since(start).Seconds()
			var samples [][]float64
			var timestamps []float64
			for ; next <= elapsed; next += dt {
				samples = append(samples, fn(rng, d, next))
				timestamps = append(timestamps, next)
			}
			if len(samples) == 0 {
				continue
			}
			if err := pub.PublishBatch(d.Name, timestamps, samples); err != nil {
				log.Printf("publish %s batch: %v", d.Name, err)
			}
		}
	}
}
