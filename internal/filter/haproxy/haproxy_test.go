package haproxy

import (
	"testing"

	"github.com/flowmesh/relay/pkg/buffer"
	"github.com/flowmesh/relay/pkg/event"
	"github.com/flowmesh/relay/pkg/pipeline"
	"github.com/flowmesh/relay/pkg/pipeline/pipelinetest"
)

func buildLayout(t *testing.T, onConnect func(ConnectInfo) bool) (*pipeline.PipelineLayout, *pipelinetest.EchoFilter) {
	t.Helper()
	child := pipeline.NewPipelineLayout("test", "child", pipeline.TypeNamed)
	echo := pipelinetest.NewEchoFilter("payload")
	child.Append(echo)
	if err := child.Bind(); err != nil {
		t.Fatal(err)
	}

	parent := pipeline.NewPipelineLayout("test", "parent", pipeline.TypeRead)
	childIndex := parent.AddChild(child)
	parent.Append(New(childIndex, onConnect))
	if err := parent.Bind(); err != nil {
		t.Fatal(err)
	}
	return parent, echo
}

func TestFilter_ParsesHeaderAndForwardsPayloadIntact(t *testing.T) {
	var got ConnectInfo
	layout, echo := buildLayout(t, func(info ConnectInfo) bool {
		got = info
		return true
	})

	producer := buffer.NewProducer()
	sink := &pipelinetest.RecordingSink{}
	p, err := layout.Alloc(pipeline.NewContext(pipeline.NewInputContext()), sink)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	p.Process(event.NewData(producer.NewFromBytes([]byte("PROXY TCP4 1.2.3.4 5.6.7.8 11111 22222\r\n"))))
	p.Process(event.NewData(producer.NewFromBytes([]byte("hello"))))

	want := ConnectInfo{
		Protocol:      "TCP4",
		SourceAddress: "1.2.3.4",
		TargetAddress: "5.6.7.8",
		SourcePort:    11111,
		TargetPort:    22222,
	}
	if got != want {
		t.Fatalf("ConnectInfo = %+v, want %+v", got, want)
	}

	if len(echo.Seen) != 1 {
		t.Fatalf("got %d events reaching the sub-pipeline, want 1", len(echo.Seen))
	}
	data, ok := echo.Seen[0].(*event.Data)
	if !ok {
		t.Fatalf("sub-pipeline event = %T, want *event.Data", echo.Seen[0])
	}
	if string(data.Buffer.Bytes()) != "hello" {
		t.Errorf("payload = %q, want %q", data.Buffer.Bytes(), "hello")
	}
}

func TestFilter_PayloadSplitAcrossMultipleDataEventsStillForwardsIntact(t *testing.T) {
	layout, echo := buildLayout(t, func(ConnectInfo) bool { return true })
	producer := buffer.NewProducer()
	sink := &pipelinetest.RecordingSink{}
	p, err := layout.Alloc(pipeline.NewContext(pipeline.NewInputContext()), sink)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	p.Process(event.NewData(producer.NewFromBytes([]byte("PROXY TCP4 1.2.3.4 5.6.7.8 11111 22222\r\nhel"))))
	p.Process(event.NewData(producer.NewFromBytes([]byte("lo"))))

	var payload []byte
	for _, evt := range echo.Seen {
		if d, ok := evt.(*event.Data); ok {
			payload = append(payload, d.Buffer.Bytes()...)
		}
	}
	if string(payload) != "hello" {
		t.Errorf("reassembled payload = %q, want %q", payload, "hello")
	}
}

func TestFilter_RejectedConnectEndsTheStream(t *testing.T) {
	layout, echo := buildLayout(t, func(ConnectInfo) bool { return false })
	producer := buffer.NewProducer()
	sink := &pipelinetest.RecordingSink{}
	p, err := layout.Alloc(pipeline.NewContext(pipeline.NewInputContext()), sink)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	p.Process(event.NewData(producer.NewFromBytes([]byte("PROXY TCP4 1.2.3.4 5.6.7.8 11111 22222\r\n"))))

	if len(echo.Seen) != 0 {
		t.Fatalf("rejected connect must not open the sub-pipeline, got %d events", len(echo.Seen))
	}
	if len(sink.Events) == 0 {
		t.Fatal("expected a StreamEnd downstream after rejection")
	}
	se, ok := sink.Events[len(sink.Events)-1].(*event.StreamEnd)
	if !ok {
		t.Fatalf("last event = %T, want *event.StreamEnd", sink.Events[len(sink.Events)-1])
	}
	if se.IsGraceful() {
		t.Error("rejection should end the stream with an error, not gracefully")
	}
}

func TestFilter_MalformedHeaderLatchesErrorAndEndsStream(t *testing.T) {
	layout, echo := buildLayout(t, func(ConnectInfo) bool { return true })
	producer := buffer.NewProducer()
	sink := &pipelinetest.RecordingSink{}
	p, err := layout.Alloc(pipeline.NewContext(pipeline.NewInputContext()), sink)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	p.Process(event.NewData(producer.NewFromBytes([]byte("NOT A PROXY LINE\r\n"))))

	if len(echo.Seen) != 0 {
		t.Fatalf("malformed header must not open the sub-pipeline, got %d events", len(echo.Seen))
	}
	if len(sink.Events) == 0 {
		t.Fatal("expected a StreamEnd downstream after a malformed header")
	}
	if _, ok := sink.Events[len(sink.Events)-1].(*event.StreamEnd); !ok {
		t.Fatalf("last event = %T, want *event.StreamEnd", sink.Events[len(sink.Events)-1])
	}
}

func TestFilter_OverlongHeaderLineLatchesError(t *testing.T) {
	layout, _ := buildLayout(t, func(ConnectInfo) bool { return true })
	producer := buffer.NewProducer()
	sink := &pipelinetest.RecordingSink{}
	p, err := layout.Alloc(pipeline.NewContext(pipeline.NewInputContext()), sink)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	overlong := make([]byte, maxHeaderLine+10)
	for i := range overlong {
		overlong[i] = 'x'
	}
	p.Process(event.NewData(producer.NewFromBytes(overlong)))

	if len(sink.Events) == 0 {
		t.Fatal("expected a StreamEnd downstream after an overlong header line")
	}
	if _, ok := sink.Events[len(sink.Events)-1].(*event.StreamEnd); !ok {
		t.Fatalf("last event = %T, want *event.StreamEnd", sink.Events[len(sink.Events)-1])
	}
}
