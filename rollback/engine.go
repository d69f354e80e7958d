package rollback

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rollarena/logging"
)

type snapshot[S any] struct {
	state S
	ok    bool
}

type engineOptions struct {
	log *zap.SugaredLogger
}

// EngineOption 引擎可选项
type EngineOption func(*engineOptions)

// WithLogger 指定日志；默认使用 logging.L()
func WithLogger(l *zap.SugaredLogger) EngineOption {
	return func(o *engineOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// Engine 回滚引擎：每个 Tick 采集本地输入、与对端交换、预测缺失输入、发现误预测时回滚重算
//
// 单线程使用：同一时刻只有一个 Tick 在执行，内部不加锁（Metrics 除外）。
type Engine[S any] struct {
	cfg      Config
	session  *Session
	sim      Simulation[S]
	checksum Checksummer[S]
	log      *zap.SugaredLogger
	metrics  Metrics

	history *InputHistory
	states  *window[snapshot[S]] // states[f] = 模拟第 f 帧之前的状态
	state   S

	current   Frame // 下一帧待模拟
	confirmed Frame

	lastConfirmed [MaxPlayers]Frame // 每名玩家已连续确认的最高帧
	acks          [MaxPlayers]Frame // 对端已连续收到的本地输入最高帧
	checked       [MaxPlayers]Frame // 已与该对端比较过校验和的最高帧

	closed bool
	buf    []byte
}

// NewEngine 在 Running 会话上创建引擎；initial 为第 0 帧之前的状态
func NewEngine[S any](cfg Config, sess *Session, sim Simulation[S], initial S, opts ...EngineOption) (*Engine[S], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sess == nil || sess.State() != Running {
		return nil, errors.New("new engine: session is not running")
	}
	if sess.NumPlayers() != cfg.NumPlayers {
		return nil, fmt.Errorf("new engine: session has %d players, config wants %d", sess.NumPlayers(), cfg.NumPlayers)
	}
	o := engineOptions{log: logging.L()}
	for _, opt := range opts {
		opt(&o)
	}

	w := cfg.HistoryWindow
	e := &Engine[S]{
		cfg:       cfg,
		session:   sess,
		sim:       sim,
		log:       o.log,
		history:   NewInputHistory(cfg.NumPlayers, 2*w+2, 0),
		states:    newWindow[snapshot[S]](w+1, 0),
		state:     initial,
		confirmed: NullFrame,
	}
	e.checksum, _ = sim.(Checksummer[S])

	// 输入延迟内的帧所有端都视为已确认的零输入
	delay := Frame(cfg.InputDelay)
	for h := 0; h < cfg.NumPlayers; h++ {
		for f := Frame(0); f < delay; f++ {
			_, _ = e.history.Confirm(f, PlayerHandle(h), FrameInput{})
		}
		e.lastConfirmed[h] = delay - 1
		e.acks[h] = delay - 1
		e.checked[h] = NullFrame
	}
	return e, nil
}

// Tick 推进一帧：采集 → 广播 → 接收 → 误预测检查/回滚 → 推进 → 更新确认帧
// 网络相关错误只记录日志与指标，不会返回；会话已关闭返回 ErrSessionClosed。
func (e *Engine[S]) Tick(local FrameInput) error {
	if e.closed {
		return ErrSessionClosed
	}
	e.capture(local)
	e.broadcast()
	if target := e.ingest(); target != NullFrame {
		e.rollbackTo(target)
	}
	e.step()
	e.updateConfirmed()
	e.prune()
	e.metrics.incTicks()
	return nil
}

// State 当前（可能含预测的）状态；展示层只读
func (e *Engine[S]) State() S { return e.state }

// StateAfter 第 f 帧模拟完成后的状态副本；不在保留窗口内返回 false
func (e *Engine[S]) StateAfter(f Frame) (S, bool) {
	st, ok := e.stateAfter(f)
	if !ok {
		return st, false
	}
	return e.sim.Snapshot(st), true
}

// CurrentFrame 下一帧待模拟的帧号
func (e *Engine[S]) CurrentFrame() Frame { return e.current }

// SimulationFrame 已模拟的最高帧；尚未推进时为 NullFrame
func (e *Engine[S]) SimulationFrame() Frame { return e.current - 1 }

// ConfirmedFrame 所有玩家输入均已确认的最高帧
func (e *Engine[S]) ConfirmedFrame() Frame { return e.confirmed }

func (e *Engine[S]) LocalHandle() PlayerHandle { return e.session.LocalHandle() }
func (e *Engine[S]) Session() *Session         { return e.session }
func (e *Engine[S]) Metrics() *Metrics         { return &e.metrics }

// Close 释放通道并丢弃历史与状态
func (e *Engine[S]) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	err := e.session.Close()
	e.history = nil
	e.states = nil
	var zero S
	e.state = zero
	return err
}

func (e *Engine[S]) capture(local FrameInput) {
	h := e.session.LocalHandle()
	f := e.current + Frame(e.cfg.InputDelay)
	if _, err := e.history.Confirm(f, h, local); err != nil {
		e.log.Warnf("capture frame %d: %v", f, err)
		return
	}
	e.advanceContiguous(h)
}

// broadcast 向每个对端发送其尚未确认的全部本地输入（引擎层的重传）
func (e *Engine[S]) broadcast() {
	local := e.session.LocalHandle()
	newest := e.lastConfirmed[local]
	csFrame, sum := e.localChecksum()
	for _, h := range e.session.RemoteHandles() {
		peer, _ := e.session.PeerOf(h)
		start := e.acks[h] + 1
		if start < e.history.First() {
			start = e.history.First()
		}
		pkt := inputPacket{
			handle:        local,
			ack:           e.lastConfirmed[h],
			start:         start,
			checksumFrame: csFrame,
			checksum:      sum,
		}
		for f := start; f <= newest; f++ {
			in, _ := e.history.Input(f, local)
			pkt.inputs = append(pkt.inputs, in)
		}
		e.buf = pkt.appendBinary(e.buf[:0])
		e.session.Transport().Send(peer, e.buf)
		e.metrics.incPacketsSent()
	}
}

// ingest 取走所有入站消息，返回最早的误预测帧（无则 NullFrame）
func (e *Engine[S]) ingest() Frame {
	local := e.session.LocalHandle()
	target := NullFrame
	for _, msg := range e.session.Transport().Receive() {
		e.metrics.incPacketsReceived()
		h, ok := e.session.HandleOf(msg.From)
		if !ok || h == local {
			e.dropMalformed(msg.From, fmt.Errorf("%w: unbound peer", ErrMalformedInput))
			continue
		}
		pkt, err := decodePacket(msg.Payload)
		if err != nil {
			e.dropMalformed(msg.From, err)
			continue
		}
		if pkt.handle != h {
			e.dropMalformed(msg.From, fmt.Errorf("%w: handle %d from peer bound to %d", ErrMalformedInput, pkt.handle, h))
			continue
		}
		if ack := min(pkt.ack, e.lastConfirmed[local]); ack > e.acks[h] {
			e.acks[h] = ack
		}
		for i, in := range pkt.inputs {
			t := e.ingestInput(h, pkt.start+Frame(i), in)
			if t != NullFrame && (target == NullFrame || t < target) {
				target = t
			}
		}
		e.advanceContiguous(h)
		e.checkDesync(h, pkt)
	}
	return target
}

func (e *Engine[S]) ingestInput(h PlayerHandle, f Frame, in FrameInput) Frame {
	if f < e.history.First() || f >= e.history.End() {
		// 过旧的是重传；过新的稍后会被重传
		return NullFrame
	}
	mispredicted, err := e.history.Confirm(f, h, in)
	if err != nil {
		e.metrics.incConflictingInputs()
		e.log.Warnf("handle %d: %v", h, err)
		return NullFrame
	}
	if mispredicted {
		return f
	}
	return NullFrame
}

// advanceContiguous 推进 lastConfirmed；若缺口已滑出窗口则跳过它（无法再回滚修正）
func (e *Engine[S]) advanceContiguous(h PlayerHandle) {
	if first := e.history.First(); e.lastConfirmed[h]+1 < first {
		e.metrics.incWindowExceeded()
		e.log.Warnf("handle %d: inputs %d..%d left the window unconfirmed: %v",
			h, e.lastConfirmed[h]+1, first-1, ErrHistoryWindowExceeded)
		e.lastConfirmed[h] = first - 1
	}
	for {
		next := e.lastConfirmed[h] + 1
		if !e.history.Contains(next) {
			return
		}
		if _, st := e.history.Input(next, h); st != SlotConfirmed {
			return
		}
		e.lastConfirmed[h] = next
	}
}

func (e *Engine[S]) rollbackTo(target Frame) {
	if !e.states.contains(target) || !e.states.at(target).ok {
		e.metrics.incWindowExceeded()
		e.log.Warnf("rollback to frame %d at frame %d: %v", target, e.current, ErrHistoryWindowExceeded)
		return
	}
	end := e.current
	e.state = e.sim.Snapshot(e.states.at(target).state)
	e.current = target
	for e.current < end {
		e.step()
	}
	e.metrics.addRollback(int(end - target))
	e.log.Debugf("rolled back to frame %d, resimulated %d frames", target, end-target)
}

// step 解析第 current 帧输入，保存快照，推进状态
func (e *Engine[S]) step() {
	f := e.current
	inputs := make([]FrameInput, e.cfg.NumPlayers)
	for h := range inputs {
		inputs[h] = e.history.Resolve(f, PlayerHandle(h))
	}
	*e.states.at(f) = snapshot[S]{state: e.sim.Snapshot(e.state), ok: true}
	e.state = e.sim.Advance(e.state, inputs)
	e.current++
}

func (e *Engine[S]) updateConfirmed() {
	c := e.lastConfirmed[0]
	for h := 1; h < e.cfg.NumPlayers; h++ {
		c = min(c, e.lastConfirmed[h])
	}
	e.confirmed = min(c, e.current-1)
}

func (e *Engine[S]) prune() {
	w := Frame(e.cfg.HistoryWindow)
	e.history.Prune(e.current - w - 1)
	e.states.advanceTo(e.current - w)
}

func (e *Engine[S]) stateAfter(f Frame) (S, bool) {
	var zero S
	if e.closed || f < 0 || f >= e.current {
		return zero, false
	}
	if f == e.current-1 {
		return e.state, true
	}
	if !e.states.contains(f + 1) {
		return zero, false
	}
	snap := e.states.at(f + 1)
	return snap.state, snap.ok
}

func (e *Engine[S]) localChecksum() (Frame, uint64) {
	if e.checksum == nil || e.confirmed == NullFrame {
		return NullFrame, 0
	}
	st, ok := e.stateAfter(e.confirmed)
	if !ok {
		return NullFrame, 0
	}
	return e.confirmed, e.checksum.Checksum(st)
}

func (e *Engine[S]) checkDesync(h PlayerHandle, pkt inputPacket) {
	f := pkt.checksumFrame
	if e.checksum == nil || f == NullFrame || f <= e.checked[h] || f > e.confirmed {
		return
	}
	st, ok := e.stateAfter(f)
	if !ok {
		return
	}
	e.checked[h] = f
	if sum := e.checksum.Checksum(st); sum != pkt.checksum {
		e.metrics.incDesyncsDetected()
		e.log.Warnf("desync with handle %d at frame %d: local=%016x remote=%016x", h, f, sum, pkt.checksum)
	}
}

func (e *Engine[S]) dropMalformed(from PeerID, err error) {
	e.metrics.incMalformedDropped()
	e.log.Debugf("dropped message from %q: %v", from, err)
}
