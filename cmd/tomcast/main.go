// Command tomcast runs one member of a totally ordered multicast group
// with an interactive command shell.
//
// The default group is three processes on localhost; the binary claims the
// first free slot. Start it in three terminals to form the full group.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/JoaoMesa/totally-ordered-multicast/pkg/tomcast"
)

// defaultMembers is the static group every member knows at startup.
var defaultMembers = []tomcast.Member{
	{ID: "processo1", Addr: "localhost:5000"},
	{ID: "processo2", Addr: "localhost:5001"},
	{ID: "processo3", Addr: "localhost:5002"},
}

func main() {
	increment := flag.Int("increment", 1, "logical clock increment for this process")
	debug := flag.Bool("debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tomcast version %s\n", tomcast.Version)
		return
	}

	if *increment <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -increment must be positive")
		os.Exit(1)
	}

	member, ok := pickFreeMember(defaultMembers)
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: no free slot in the group; all addresses are in use:")
		for _, m := range defaultMembers {
			fmt.Fprintf(os.Stderr, "  %s (%s)\n", m.Addr, m.ID)
		}
		os.Exit(1)
	}

	level := tomcast.LogLevelInfo
	if *debug {
		level = tomcast.LogLevelDebug
	}

	opts := tomcast.DefaultOptions()
	opts.ClockIncrement = *increment
	opts.Logger = tomcast.NewLogger(level)
	opts.OnDeliver = func(m tomcast.Message) {
		fmt.Printf("\n*** DELIVERED: %q from %s (ts:%d)\n", m.Content, m.Sender, m.Timestamp)
	}

	proc, err := tomcast.NewProcess(member.ID, defaultMembers, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating process: %v\n", err)
		os.Exit(1)
	}

	if err := proc.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting process: %v\n", err)
		os.Exit(1)
	}
	defer proc.Stop()

	fmt.Printf("Process %s listening on %s (clock increment %d)\n",
		member.ID, member.Addr, *increment)
	printHelp()

	runShell(proc)

	fmt.Println("Process stopped.")
}

// pickFreeMember probes the group addresses in order and claims the first
// slot whose port is free.
func pickFreeMember(members []tomcast.Member) (tomcast.Member, bool) {
	for _, m := range members {
		ln, err := net.Listen("tcp", m.Addr)
		if err != nil {
			continue
		}
		_ = ln.Close()
		return m, true
	}
	return tomcast.Member{}, false
}

func printHelp() {
	fmt.Println("\nCommands:")
	fmt.Println("  send <message>  - broadcast a message to the group")
	fmt.Println("  deliver         - try to deliver the message at the head of the queue")
	fmt.Println("  queue           - show the current message queue")
	fmt.Println("  clock           - show the current logical clock")
	fmt.Println("  pass            - advance the clock by one increment")
	fmt.Println("  stats           - show process statistics")
	fmt.Println("  help            - show this help")
	fmt.Println("  quit            - stop the process")
}

func runShell(proc *tomcast.Process) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("[%s]> ", proc.ID())
		if !scanner.Scan() {
			return
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch {
		case input == "quit":
			return
		case input == "deliver":
			if proc.TryDeliverHead() {
				fmt.Println("Message delivered.")
			} else {
				fmt.Println("Nothing deliverable: queue empty or head not fully acknowledged.")
			}
		case input == "queue":
			printQueue(proc)
		case input == "clock":
			fmt.Printf("Current clock: %d\n", proc.ClockValue())
		case input == "pass":
			fmt.Printf("Clock advanced to %d\n", proc.Tick())
		case input == "stats":
			printStats(proc)
		case input == "help":
			printHelp()
		case strings.HasPrefix(input, "send "):
			content := strings.TrimSpace(input[len("send "):])
			if content == "" {
				fmt.Println("Missing message content.")
				continue
			}
			if err := proc.SendMessage(content); err != nil {
				fmt.Printf("Send failed: %v\n", err)
			}
		default:
			fmt.Println("Invalid command. Type 'help' for the command list.")
		}
	}
}

func printQueue(proc *tomcast.Process) {
	snap := proc.QueueSnapshot()

	if len(snap.Entries) == 0 {
		fmt.Println("Message queue is empty.")
	} else {
		fmt.Printf("Message queue (%d messages):\n", len(snap.Entries))
		for i, e := range snap.Entries {
			status := ""
			switch {
			case e.IsDeliverable:
				status = " (DELIVERABLE)"
			case e.IsHead:
				status = fmt.Sprintf(" (blocked: needs %d more acks)", e.RequiredAcks-e.AckCount)
			case e.AckCount >= e.RequiredAcks:
				status = " (blocked: not at head)"
			}
			headMark := ""
			if e.IsHead {
				headMark = " [HEAD]"
			}
			fmt.Printf("  %d. %q from %s (ts:%d) - %d/%d acks%s%s\n",
				i+1, e.Content, e.Sender, e.Timestamp,
				e.AckCount, e.RequiredAcks, headMark, status)
			if len(e.AckedBy) > 0 {
				fmt.Printf("     acked by: %s\n", strings.Join(e.AckedBy, ", "))
			}
		}
	}

	if len(snap.PendingAcks) > 0 {
		fmt.Println("\nPending acknowledgments (received before their message):")
		targets := make([]string, 0, len(snap.PendingAcks))
		for target := range snap.PendingAcks {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			fmt.Printf("  %s: acks from %s\n", target, strings.Join(snap.PendingAcks[target], ", "))
		}
	}
}

func printStats(proc *tomcast.Process) {
	stats := proc.Stats()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Process Statistics")
	fmt.Fprintln(w, "==================")
	fmt.Fprintf(w, "Process:\t%s\n", stats.ProcessID)
	fmt.Fprintf(w, "Clock:\t%d\n", stats.ClockValue)
	fmt.Fprintf(w, "Queue Length:\t%d\n", stats.QueueLength)
	fmt.Fprintf(w, "Pending Ack Targets:\t%d\n", stats.PendingAckTargets)
	fmt.Fprintf(w, "Required Acks:\t%d\n", stats.RequiredAcks)
	fmt.Fprintf(w, "Multicasts Sent:\t%d\n", stats.Metrics.MulticastsSent)
	fmt.Fprintf(w, "Multicasts Received:\t%d\n", stats.Metrics.MulticastsReceived)
	fmt.Fprintf(w, "Acks Sent:\t%d\n", stats.Metrics.AcksSent)
	fmt.Fprintf(w, "Acks Received:\t%d\n", stats.Metrics.AcksReceived)
	fmt.Fprintf(w, "Acks Buffered:\t%d\n", stats.Metrics.AcksBuffered)
	fmt.Fprintf(w, "Deliveries:\t%d\n", stats.Metrics.Deliveries)
	fmt.Fprintf(w, "Send Failures:\t%d\n", stats.Metrics.SendFailures)
	fmt.Fprintf(w, "Decode Errors:\t%d\n", stats.Metrics.DecodeErrors)
	_ = w.Flush()
}
