package diag

import (
	"os"
	"runtime"
	"strings"

	"github.com/danmuck/diagipc/internal/ipc"
	"github.com/google/uuid"
)

// ProcessInfo describes the serving process. RuntimeCookie is fixed for the
// life of the process so a tool can tell a restarted process from the one it
// attached to before.
type ProcessInfo struct {
	PID           uint64
	RuntimeCookie uuid.UUID
	CommandLine   string
	OS            string
	Arch          string
}

var ProcessInfoCodec = ipc.Custom[ProcessInfo]()

func (p ProcessInfo) PayloadSize() int {
	return 8 + len(p.RuntimeCookie) + ipc.StringSize(p.CommandLine) + ipc.StringSize(p.OS) + ipc.StringSize(p.Arch)
}

func (p ProcessInfo) Flatten(dst []byte) (int, error) {
	w := ipc.NewPayloadWriter(dst)
	if err := w.PutUint64(p.PID); err != nil {
		return w.Len(), err
	}
	for _, b := range p.RuntimeCookie {
		if err := w.PutUint8(b); err != nil {
			return w.Len(), err
		}
	}
	for _, s := range []string{p.CommandLine, p.OS, p.Arch} {
		if err := w.PutString(s); err != nil {
			return w.Len(), err
		}
	}
	return w.Len(), nil
}

func (p *ProcessInfo) TryParse(src []byte) error {
	r := ipc.NewPayloadReader(src)
	pid, err := r.ReadUint64()
	if err != nil {
		return err
	}
	var cookie uuid.UUID
	for i := range cookie {
		if cookie[i], err = r.ReadUint8(); err != nil {
			return err
		}
	}
	var fields [3]string
	for i := range fields {
		if fields[i], err = r.ReadString(); err != nil {
			return err
		}
	}
	*p = ProcessInfo{PID: pid, RuntimeCookie: cookie, CommandLine: fields[0], OS: fields[1], Arch: fields[2]}
	return nil
}

// CurrentProcessInfo describes this process under cookie.
func CurrentProcessInfo(cookie uuid.UUID) ProcessInfo {
	return ProcessInfo{
		PID:           uint64(os.Getpid()),
		RuntimeCookie: cookie,
		CommandLine:   strings.Join(os.Args, " "),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}
}

// ProcessInfoHandler answers Process/Info with info.
func ProcessInfoHandler(info ProcessInfo) Handler {
	return func(s *Session, msg ipc.Message) error {
		reply, err := OKReply(info, ProcessInfoCodec)
		if err != nil {
			return err
		}
		return s.Send(reply)
	}
}
