package kmain

import (
	"bytes"
	"testing"

	"github.com/brymer-meneses/Nekos/kernel"
	"github.com/brymer-meneses/Nekos/kernel/hal/boot"
	"github.com/brymer-meneses/Nekos/kernel/kfmt"
	"github.com/brymer-meneses/Nekos/kernel/mem"
	"github.com/brymer-meneses/Nekos/kernel/mem/vmm"
)

func TestKmain(t *testing.T) {
	defer func(
		origAllocatorInit func(*boot.Info) *kernel.Error,
		origVmmInit func(*boot.Info, vmm.FrameAllocatorFn) *kernel.Error,
		origActivate func(),
		origPutchar func(byte),
		origPanic func(interface{}),
	) {
		allocatorInitFn = origAllocatorInit
		vmmInitFn = origVmmInit
		activateFn = origActivate
		consolePutcharFn = origPutchar
		panicFn = origPanic
		kfmt.SetOutputSink(nil)
		boot.SetInfo(nil)
	}(allocatorInitFn, vmmInitFn, activateFn, consolePutcharFn, panicFn)

	var (
		validInfo = &boot.Info{PagingMode: mem.ModeSv48, DirectMapOffset: 0xffff_8000_0000_0000}
		allocErr  = &kernel.Error{Module: "test", Message: "allocator init failed"}
		vmmErr    = &kernel.Error{Module: "test", Message: "vmm init failed"}
	)

	specs := []struct {
		info         *boot.Info
		allocatorErr *kernel.Error
		vmmErr       *kernel.Error
		// expected calls, in order
		expCalls  string
		expPanics []interface{}
	}{
		{validInfo, nil, nil, "allocator,vmm,activate,", []interface{}{errKmainReturned}},
		{validInfo, allocErr, nil, "allocator,", []interface{}{allocErr, errKmainReturned}},
		{validInfo, nil, vmmErr, "allocator,vmm,", []interface{}{vmmErr, errKmainReturned}},
		{nil, nil, nil, "", []interface{}{errMissingBootInfo, errKmainReturned}},
		{&boot.Info{PagingMode: 7}, nil, nil, "", []interface{}{errUnsupportedPagingMode, errKmainReturned}},
	}

	for specIndex, spec := range specs {
		var (
			calls  string
			panics []interface{}
			output bytes.Buffer
		)

		allocatorInitFn = func(info *boot.Info) *kernel.Error {
			if info != spec.info {
				t.Errorf("[spec %d] expected allocator.Init to receive the boot info", specIndex)
			}
			calls += "allocator,"
			return spec.allocatorErr
		}
		vmmInitFn = func(info *boot.Info, allocFn vmm.FrameAllocatorFn) *kernel.Error {
			if allocFn == nil {
				t.Errorf("[spec %d] expected vmm.Init to receive a frame allocator", specIndex)
			}
			calls += "vmm,"
			return spec.vmmErr
		}
		activateFn = func() { calls += "activate," }
		consolePutcharFn = func(ch byte) { output.WriteByte(ch) }
		panicFn = func(e interface{}) { panics = append(panics, e) }

		Kmain(spec.info)

		if calls != spec.expCalls {
			t.Errorf("[spec %d] expected calls %q; got %q", specIndex, spec.expCalls, calls)
		}

		if len(panics) != len(spec.expPanics) {
			t.Errorf("[spec %d] expected panics %v; got %v", specIndex, spec.expPanics, panics)
			continue
		}

		for i := range panics {
			if panics[i] != spec.expPanics[i] {
				t.Errorf("[spec %d] expected panic %d to be %v; got %v", specIndex, i, spec.expPanics[i], panics[i])
			}
		}

		if boot.GetInfo() != spec.info {
			t.Errorf("[spec %d] expected boot info to be registered", specIndex)
		}

		if spec.info == validInfo {
			exp := "[info] paging mode: sv48, direct map at 0xffff800000000000\n"
			if got := output.String(); got != exp {
				t.Errorf("[spec %d] expected console output %q; got %q", specIndex, exp, got)
			}
		}
	}
}

func TestSBIConsole(t *testing.T) {
	defer func(origPutchar func(byte)) {
		consolePutcharFn = origPutchar
	}(consolePutcharFn)

	var buf bytes.Buffer
	consolePutcharFn = func(ch byte) { buf.WriteByte(ch) }

	n, err := sbiConsole{}.Write([]byte("hello\n"))
	if err != nil {
		t.Fatal(err)
	}

	if n != 6 || buf.String() != "hello\n" {
		t.Fatalf("expected 6 bytes %q to be written; got %d bytes %q", "hello\n", n, buf.String())
	}
}
