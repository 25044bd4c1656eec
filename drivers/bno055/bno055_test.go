package bno055_test

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"imunode-go/drivers/bno055"
	"imunode-go/drivers/bno055/bno055sim"
	"imunode-go/x/i2cx"
)

func newPair(t *testing.T, cfg bno055sim.Config) (*bno055sim.Device, *bno055.Device) {
	t.Helper()
	sim := bno055sim.New(cfg)
	dev := bno055.New(sim, bno055.Config{Delay: sim.Sleep})
	return sim, dev
}

func ready(t *testing.T, cfg bno055sim.Config) (*bno055sim.Device, *bno055.Device) {
	t.Helper()
	sim, dev := newPair(t, cfg)
	if err := dev.BringUp(); err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	return sim, dev
}

func modeWrite(m bno055.OperationMode) []byte {
	return []byte{byte(bno055.RegOprMode), byte(m)}
}

func noCombined(t *testing.T, sim *bno055sim.Device) {
	t.Helper()
	for i, op := range sim.Log() {
		if errors.Is(op.Err, bno055sim.ErrCombined) {
			t.Fatalf("op %d: combined write+read issued", i)
		}
	}
}

// ---- decode ----

func TestDecodeFormula(t *testing.T) {
	cases := []struct {
		in   [6]byte
		want bno055.Vector
	}{
		{[6]byte{0x10, 0x00, 0x20, 0x00, 0x30, 0x00}, bno055.Vector{X: 16, Y: 32, Z: 48}},
		{[6]byte{0xFF, 0xFF, 0x00, 0x80, 0xFF, 0x7F}, bno055.Vector{X: -1, Y: -32768, Z: 32767}},
		{[6]byte{0x34, 0x12, 0x01, 0x00, 0x00, 0x01}, bno055.Vector{X: 0x1234, Y: 1, Z: 256}},
		{[6]byte{}, bno055.Vector{}},
	}
	for _, c := range cases {
		got := bno055.Decode(c.in)
		if got != c.want {
			t.Fatalf("Decode(% x) = %+v, want %+v", c.in, got, c.want)
		}
		if again := bno055.Decode(c.in); again != got {
			t.Fatalf("Decode not deterministic: %+v vs %+v", got, again)
		}
	}
}

func TestDecodeMatchesShiftOrForAllBytePairs(t *testing.T) {
	for lo := 0; lo < 256; lo += 7 {
		for hi := 0; hi < 256; hi++ {
			b := [6]byte{byte(lo), byte(hi), byte(hi), byte(lo), byte(lo), byte(lo)}
			v := bno055.Decode(b)
			if want := int16(uint16(lo) | uint16(hi)<<8); v.X != want {
				t.Fatalf("X for %02x %02x = %d, want %d", lo, hi, v.X, want)
			}
			if want := int16(uint16(hi) | uint16(lo)<<8); v.Y != want {
				t.Fatalf("Y for %02x %02x = %d, want %d", hi, lo, v.Y, want)
			}
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	vals := []int16{0, 1, -1, 16, -16, 255, 256, -256, 0x1234, -0x1234, 32767, -32768}
	for _, x := range vals {
		for _, y := range vals {
			v := bno055.Vector{X: x, Y: y, Z: x ^ y}
			if got := bno055.Decode(bno055.Encode(v)); got != v {
				t.Fatalf("round trip %+v -> %+v", v, got)
			}
		}
	}
}

// ---- bring-up ----

func TestBringUpSuccessWritesModeLast(t *testing.T) {
	sim, dev := newPair(t, bno055sim.Config{})

	if err := dev.BringUp(); err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	if r, done := dev.Result(); !done || r != bno055.ResultOK {
		t.Fatalf("Result = %v,%v", r, done)
	}
	if !dev.Ready() {
		t.Fatal("not ready after successful bring-up")
	}

	w := sim.Writes()
	if len(w) == 0 || !bytes.Equal(w[len(w)-1], modeWrite(bno055.ModeNDOF)) {
		t.Fatalf("last register write = % x, want % x", w[len(w)-1], modeWrite(bno055.ModeNDOF))
	}
	log := sim.Log()
	if last := log[len(log)-1]; !last.Write || !bytes.Equal(last.Data, modeWrite(bno055.ModeNDOF)) {
		t.Fatalf("last transaction = %+v, want mode write", last)
	}
	if got := bno055.OperationMode(sim.Register(bno055.RegOprMode)); got != bno055.ModeNDOF {
		t.Fatalf("device mode = %s", got)
	}
	noCombined(t, sim)
}

func TestBringUpWarmSequenceAndTiming(t *testing.T) {
	sim, dev := newPair(t, bno055sim.Config{})
	if err := dev.BringUp(); err != nil {
		t.Fatalf("BringUp: %v", err)
	}

	want := [][]byte{
		{byte(bno055.RegPwrMode), bno055.PowerNormal},
		{byte(bno055.RegPageID), 0},
		{byte(bno055.RegSysTrigger), 0},
		modeWrite(bno055.ModeNDOF),
	}
	if got := sim.Writes(); !slices.EqualFunc(got, want, bytes.Equal) {
		t.Fatalf("writes = % x, want % x", got, want)
	}

	wantSleeps := []time.Duration{
		bno055.WarmBootDelay,
		bno055.PostIDDelay,
		bno055.PowerSettleDelay,
		bno055.TriggerSettleDelay,
		bno055.ModeSettleDelay,
	}
	if got := sim.Sleeps(); !slices.Equal(got, wantSleeps) {
		t.Fatalf("sleeps = %v, want %v", got, wantSleeps)
	}
	if sim.Resets() != 0 {
		t.Fatalf("unexpected reset from config mode")
	}
}

func TestBringUpResetsDeviceFoundReporting(t *testing.T) {
	sim, dev := newPair(t, bno055sim.Config{Mode: bno055.ModeNDOF})
	if err := dev.BringUp(); err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	if sim.Resets() != 1 {
		t.Fatalf("resets = %d, want 1", sim.Resets())
	}
	w := sim.Writes()
	if !bytes.Equal(w[0], modeWrite(bno055.ModeConfig)) {
		t.Fatalf("first write = % x, want config mode", w[0])
	}
	if !bytes.Equal(w[1], []byte{byte(bno055.RegSysTrigger), bno055.TriggerResetSys}) {
		t.Fatalf("second write = % x, want RST_SYS", w[1])
	}
	sl := sim.Sleeps()
	if sl[0] != bno055.ModeSettleDelay || sl[1] != bno055.BootDelay {
		t.Fatalf("sleeps = %v, want mode settle then boot delay", sl)
	}
}

func TestBringUpColdBoot(t *testing.T) {
	sim, dev := newPair(t, bno055sim.Config{ColdBoot: true})
	if err := dev.BringUp(); err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	if sim.Resets() != 0 {
		t.Fatal("cold boot should not need a reset")
	}
	if sl := sim.Sleeps(); sl[0] != bno055.BootDelay {
		t.Fatalf("first wait = %v, want %v", sl[0], bno055.BootDelay)
	}
}

func TestBringUpWrongIDTwiceIsInitFailure(t *testing.T) {
	sim, dev := newPair(t, bno055sim.Config{ChipID: 0x55})

	err := dev.BringUp()
	if !errors.Is(err, bno055.ErrInit) {
		t.Fatalf("err = %v, want ErrInit", err)
	}
	if errors.Is(err, bno055.ErrSelfTest) {
		t.Fatal("init failure must not match ErrSelfTest")
	}
	if bno055.Classify(err) != bno055.ResultInitFailure {
		t.Fatalf("Classify = %v", bno055.Classify(err))
	}
	if !strings.Contains(err.Error(), "chip id mismatch 0x55") {
		t.Fatalf("message = %q", err.Error())
	}
	for _, w := range sim.Writes() {
		if w[0] == byte(bno055.RegOprMode) && w[1] != byte(bno055.ModeConfig) {
			t.Fatalf("reporting mode written after identity failure: % x", w)
		}
	}
	if n := countSleep(sim.Sleeps(), bno055.IDRetryDelay); n != 1 {
		t.Fatalf("id retry waits = %d, want 1", n)
	}
	if dev.Ready() {
		t.Fatal("ready after init failure")
	}
}

func TestBringUpRecoversOnIDRetry(t *testing.T) {
	sim, dev := newPair(t, bno055sim.Config{})
	sim.QueueChipIDs(0x00)

	if err := dev.BringUp(); err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	if n := countSleep(sim.Sleeps(), bno055.IDRetryDelay); n != 1 {
		t.Fatalf("id retry waits = %d, want 1", n)
	}
}

func TestBringUpIDReadFailureThenSuccess(t *testing.T) {
	sim, dev := newPair(t, bno055sim.Config{})
	reads, fails := 0, 0
	sim.FailReads(func(int) bool {
		// Warm path: the mode read is first, the identity read second.
		reads++
		if reads == 2 {
			fails++
			return true
		}
		return false
	})

	if err := dev.BringUp(); err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	if fails != 1 {
		t.Fatalf("injected read failures = %d, want 1", fails)
	}
	if n := countSleep(sim.Sleeps(), bno055.IDRetryDelay); n != 1 {
		t.Fatalf("id retry waits = %d, want 1", n)
	}
}

func TestBringUpSelfTestFailure(t *testing.T) {
	_, dev := newPair(t, bno055sim.Config{SelfTest: 0b1011})

	err := dev.BringUp()
	if !errors.Is(err, bno055.ErrSelfTest) {
		t.Fatalf("err = %v, want ErrSelfTest", err)
	}
	if errors.Is(err, bno055.ErrInit) {
		t.Fatal("self-test failure must be distinct from init failure")
	}
	if bno055.Classify(err) != bno055.ResultSelfTestFailure {
		t.Fatalf("Classify = %v", bno055.Classify(err))
	}
	var st *bno055.SelfTestError
	if !errors.As(err, &st) {
		t.Fatalf("err %T is not *SelfTestError", err)
	}
	if st.Result != 0b1011 || !st.Failed(bno055.SelfTestGyro) || st.Failed(bno055.SelfTestMag) {
		t.Fatalf("SelfTestError = %+v", st)
	}
	if want := "bno055: self test failed: st_result=0b1011 failed=gyro"; err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
	if r, _ := dev.Result(); r != bno055.ResultSelfTestFailure {
		t.Fatalf("Result = %v", r)
	}
}

func TestBringUpSelfTestIgnoresHighNibble(t *testing.T) {
	_, dev := newPair(t, bno055sim.Config{SelfTest: 0xFF})
	if err := dev.BringUp(); err != nil {
		t.Fatalf("BringUp: %v", err)
	}
}

func TestBringUpAbsentDeviceIsBounded(t *testing.T) {
	sim, dev := newPair(t, bno055sim.Config{Absent: true})

	err := dev.BringUp()
	if !errors.Is(err, bno055.ErrInit) {
		t.Fatalf("err = %v, want ErrInit", err)
	}
	if !errors.Is(err, bno055sim.ErrNack) {
		t.Fatalf("err = %v, want bus cause wrapped", err)
	}
	if got := sim.Sleeps(); !slices.Equal(got, []time.Duration{bno055.BootDelay}) {
		t.Fatalf("sleeps = %v", got)
	}
}

func TestBringUpDeviceStillBootingFailsWithoutRetry(t *testing.T) {
	sim, dev := newPair(t, bno055sim.Config{ColdBoot: true, BootLatency: 2 * time.Second})

	if err := dev.BringUp(); !errors.Is(err, bno055.ErrInit) {
		t.Fatalf("err = %v, want ErrInit", err)
	}
	if n := countSleep(sim.Sleeps(), bno055.IDRetryDelay); n != 0 {
		t.Fatalf("address write failure should not retry, got %d waits", n)
	}
}

func TestBringUpRunsOnce(t *testing.T) {
	sim, dev := newPair(t, bno055sim.Config{SelfTest: 0b0111})
	first := dev.BringUp()
	n := len(sim.Log())

	second := dev.BringUp()
	if first != second {
		t.Fatalf("second BringUp returned %v, want %v", second, first)
	}
	if len(sim.Log()) != n {
		t.Fatal("second BringUp touched the bus")
	}
}

func TestBringUpOptions(t *testing.T) {
	sim := bno055sim.New(bno055sim.Config{Address: bno055.AddressB})
	dev := bno055.New(sim, bno055.Config{
		Address:         bno055.AddressB,
		Mode:            bno055.ModeIMUPlus,
		ExternalCrystal: true,
		Delay:           sim.Sleep,
	})
	if err := dev.BringUp(); err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	w := sim.Writes()
	if !bytes.Equal(w[len(w)-1], modeWrite(bno055.ModeIMUPlus)) {
		t.Fatalf("last write = % x", w[len(w)-1])
	}
	if !slices.ContainsFunc(w, func(b []byte) bool {
		return bytes.Equal(b, []byte{byte(bno055.RegSysTrigger), bno055.TriggerClkSel})
	}) {
		t.Fatalf("CLK_SEL not written: % x", w)
	}
}

func TestNewDefaults(t *testing.T) {
	dev := bno055.New(nil, bno055.Config{Mode: 0x7F})
	if dev.Address() != bno055.AddressA || dev.Mode() != bno055.ModeNDOF {
		t.Fatalf("defaults: addr=0x%02x mode=%s", dev.Address(), dev.Mode())
	}
	if _, done := dev.Result(); done {
		t.Fatal("Result reports done before BringUp")
	}
}

// ---- fetch ----

func TestFetchEuler(t *testing.T) {
	sim, dev := ready(t, bno055sim.Config{})
	sim.SetBytes(bno055.RegEulerData, []byte{0x10, 0x00, 0x20, 0x00, 0x30, 0x00})

	v, err := dev.Euler()
	if err != nil {
		t.Fatalf("Euler: %v", err)
	}
	if v != (bno055.Vector{X: 16, Y: 32, Z: 48}) {
		t.Fatalf("Euler = %+v", v)
	}
}

func TestFetchEachKindReadsItsBlock(t *testing.T) {
	sim, dev := ready(t, bno055sim.Config{})
	for i, k := range bno055.Kinds {
		sim.SetVector(k.Base(), bno055.Vector{X: int16(i + 1), Y: -int16(i + 1), Z: int16(100 * i)})
	}
	for i, k := range bno055.Kinds {
		v, err := dev.FetchKind(k)
		if err != nil {
			t.Fatalf("%s: %v", k, err)
		}
		if want := (bno055.Vector{X: int16(i + 1), Y: -int16(i + 1), Z: int16(100 * i)}); v != want {
			t.Fatalf("%s = %+v, want %+v", k, v, want)
		}
	}
	noCombined(t, sim)
}

func TestFetchSplitFraming(t *testing.T) {
	sim, dev := ready(t, bno055sim.Config{})
	sim.ResetLog()

	if _, err := dev.Gyroscope(); err != nil {
		t.Fatalf("Gyroscope: %v", err)
	}
	log := sim.Log()
	if len(log) != 2 {
		t.Fatalf("ops = %d, want 2", len(log))
	}
	if !log[0].Write || !bytes.Equal(log[0].Data, []byte{byte(bno055.RegGyroData)}) {
		t.Fatalf("op0 = %+v, want pointer write", log[0])
	}
	if log[1].Write || len(log[1].Data) != bno055.VectorLen {
		t.Fatalf("op1 = %+v, want 6-byte read", log[1])
	}
}

func TestFetchWriteFailureSkipsRead(t *testing.T) {
	sim, dev := ready(t, bno055sim.Config{})
	sim.FailWrites(func(w []byte) bool { return len(w) == 1 && w[0] == byte(bno055.RegEulerData) })
	sim.ResetLog()

	_, err := dev.Euler()
	if !errors.Is(err, bno055sim.ErrInjected) {
		t.Fatalf("err = %v, want injected bus failure", err)
	}
	log := sim.Log()
	if len(log) != 1 || !log[0].Write {
		t.Fatalf("ops after failed write = %+v, want only the write", log)
	}
}

func TestFetchReadFailure(t *testing.T) {
	sim, dev := ready(t, bno055sim.Config{})
	sim.FailReads(func(n int) bool { return n == bno055.VectorLen })

	if _, err := dev.Gravity(); !errors.Is(err, bno055sim.ErrInjected) {
		t.Fatalf("err = %v", err)
	}
}

func TestFetchBeforeBringUp(t *testing.T) {
	sim, dev := newPair(t, bno055sim.Config{})
	if _, err := dev.Euler(); !errors.Is(err, bno055.ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if len(sim.Log()) != 0 {
		t.Fatal("fetch before bring-up touched the bus")
	}
}

func TestFetchAfterFailedBringUp(t *testing.T) {
	_, dev := newPair(t, bno055sim.Config{Absent: true})
	_ = dev.BringUp()
	if _, err := dev.Euler(); !errors.Is(err, bno055.ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

// The hook runs between the Euler pointer write and its read, standing in
// for another goroutine that moves the device pointer.
func TestInterleavedFetchUnlockedReadsWrongBlock(t *testing.T) {
	sim, dev := ready(t, bno055sim.Config{})
	euler := bno055.Vector{X: 1, Y: 2, Z: 3}
	gyro := bno055.Vector{X: 70, Y: 80, Z: 90}
	sim.SetVector(bno055.RegEulerData, euler)
	sim.SetVector(bno055.RegGyroData, gyro)

	fired := false
	sim.OnWrite(func(w []byte) {
		if fired || !bytes.Equal(w, []byte{byte(bno055.RegEulerData)}) {
			return
		}
		fired = true
		_ = sim.Tx(bno055.AddressDefault, []byte{byte(bno055.RegGyroData)}, nil)
	})

	got, err := dev.Euler()
	if err != nil {
		t.Fatalf("Euler: %v", err)
	}
	if !fired {
		t.Fatal("interleave hook did not run")
	}
	if got != gyro {
		t.Fatalf("unlocked interleave: got %+v, expected the corrupted gyro value %+v", got, gyro)
	}
}

func TestInterleavedFetchLockedIsSerialized(t *testing.T) {
	sim := bno055sim.New(bno055sim.Config{})
	bus := i2cx.NewLocked(sim)
	dev := bno055.New(bus, bno055.Config{Delay: sim.Sleep})
	if err := dev.BringUp(); err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	euler := bno055.Vector{X: 1, Y: 2, Z: 3}
	sim.SetVector(bno055.RegEulerData, euler)
	sim.SetVector(bno055.RegGyroData, bno055.Vector{X: 70, Y: 80, Z: 90})

	done := make(chan error, 1)
	fired := false
	sim.OnWrite(func(w []byte) {
		if fired || !bytes.Equal(w, []byte{byte(bno055.RegEulerData)}) {
			return
		}
		fired = true
		go func() {
			bus.Lock()
			defer bus.Unlock()
			done <- sim.Tx(bno055.AddressDefault, []byte{byte(bno055.RegGyroData)}, nil)
		}()
	})

	got, err := dev.Euler()
	if err != nil {
		t.Fatalf("Euler: %v", err)
	}
	if got != euler {
		t.Fatalf("locked interleave: got %+v, want %+v", got, euler)
	}
	if err := <-done; err != nil {
		t.Fatalf("interloper: %v", err)
	}
	if ptr := sim.Log(); !bytes.Equal(ptr[len(ptr)-1].Data, []byte{byte(bno055.RegGyroData)}) {
		t.Fatal("interloper write did not land after the fetch")
	}
}

func TestSetModeRejectsInvalid(t *testing.T) {
	_, dev := ready(t, bno055sim.Config{})
	if err := dev.SetMode(0x20); !errors.Is(err, bno055.ErrInvalidMode) {
		t.Fatalf("err = %v", err)
	}
	if err := dev.SetMode(bno055.ModeAMG); err != nil || dev.Mode() != bno055.ModeAMG {
		t.Fatalf("SetMode: %v mode=%s", err, dev.Mode())
	}
}

func countSleep(s []time.Duration, d time.Duration) int {
	n := 0
	for _, v := range s {
		if v == d {
			n++
		}
	}
	return n
}

func TestSystemStatusFollowsMode(t *testing.T) {
	sim, dev := newPair(t, bno055sim.Config{})
	if st, _, err := dev.SystemStatus(); err != nil || st != bno055.SysStatusIdle {
		t.Fatalf("before bring-up: status=%d err=%v", st, err)
	}
	if err := dev.BringUp(); err != nil {
		t.Fatal(err)
	}
	sim.SetBytes(bno055.RegSysErr, []byte{0x03})
	st, se, err := dev.SystemStatus()
	if err != nil || st != bno055.SysStatusFusion || se != 0x03 {
		t.Fatalf("status=%d err=%d: %v", st, se, err)
	}
	if err := dev.SetMode(bno055.ModeAMG); err != nil {
		t.Fatal(err)
	}
	if st, _, _ := dev.SystemStatus(); st != bno055.SysStatusNoFusion {
		t.Fatalf("amg status = %d", st)
	}
	sim.FailReads(func(int) bool { return true })
	if _, _, err := dev.SystemStatus(); !errors.Is(err, bno055sim.ErrInjected) {
		t.Fatalf("read failure: %v", err)
	}
}

func TestFusedKindsMatchFusionModes(t *testing.T) {
	for _, k := range bno055.Kinds {
		want := k == bno055.KindEuler || k == bno055.KindLinearAccel || k == bno055.KindGravity
		if k.Fused() != want {
			t.Errorf("%s.Fused() = %v", k, k.Fused())
		}
	}
	if !bno055.ModeNDOF.Fusion() || !bno055.ModeIMUPlus.Fusion() || bno055.ModeAMG.Fusion() || bno055.ModeConfig.Fusion() {
		t.Error("Fusion mode table")
	}
}
