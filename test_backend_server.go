package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"io"
	"log"
	"net"
	"time"
)

var endMarker = []byte{0xDE, 0xAD, 0xBE, 0xEF}

const doneByte = 0x01

func handleConn(conn net.Conn) {
	defer conn.Close()

	log.Printf("🎤 UTTERANCE SESSION from %s", conn.RemoteAddr())

	var audio bytes.Buffer
	buf := make([]byte, 4096)
	start := time.Now()

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			audio.Write(buf[:n])
		}
		if err != nil {
			log.Printf("❌ Connection dropped before end marker: %v", err)
			return
		}

		if audio.Len() >= len(endMarker) && bytes.Equal(audio.Bytes()[audio.Len()-len(endMarker):], endMarker) {
			break
		}
	}

	pcm := audio.Bytes()[:audio.Len()-len(endMarker)]
	samples := len(pcm) / 2

	log.Printf("  ═══════════════════════════════════")
	log.Printf("  📊 Utterance Info:")
	log.Printf("    Audio Size: %d bytes (%d samples)", len(pcm), samples)
	log.Printf("    Duration: %.2f seconds", float64(samples)/16000.0)
	log.Printf("    Stream Time: %v", time.Since(start).Round(time.Millisecond))
	if samples > 0 {
		var peak int16
		for i := 0; i+1 < len(pcm); i += 2 {
			s := int16(binary.LittleEndian.Uint16(pcm[i:]))
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
		log.Printf("    Peak Amplitude: %d", peak)
	}
	log.Printf("  ═══════════════════════════════════")

	// Simulate processing time
	time.Sleep(500 * time.Millisecond)

	if _, err := conn.Write([]byte{doneByte}); err != nil {
		log.Printf("❌ Failed to send completion byte: %v", err)
		return
	}

	log.Printf("✅ COMPLETION BYTE SENT")
	log.Println("---")

	// Give the client a chance to read the byte before we close
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	io.Copy(io.Discard, conn)
}

func main() {
	addr := flag.String("addr", ":12345", "Listen address")
	flag.Parse()

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatal("Server failed to start:", err)
	}

	log.Printf("🚀 Test Backend Server listening on %s", *addr)
	log.Println("💡 Point the client's fallback_address at this server")

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("Accept failed: %v", err)
			continue
		}
		go handleConn(conn)
	}
}
