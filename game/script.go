package game

import "rollarena/rollback"

// 脚本化机器人：每 30 帧换一个方向，每 45 帧开一枪，每 120 帧点一次光标
var scriptDirections = [...]rollback.RawInput{
	{Up: true},
	{Right: true},
	{Down: true},
	{Left: true},
	{},
}

// ScriptedInput 无界面对端使用的确定性输入，只依赖 handle 与帧号
func ScriptedInput(handle rollback.PlayerHandle, frame rollback.Frame) rollback.RawInput {
	if frame < 0 {
		return rollback.RawInput{}
	}
	step := int(frame)/30 + int(handle)
	in := scriptDirections[step%len(scriptDirections)]
	in.Fire = (int(frame)+int(handle)*7)%45 == 0
	if frame > 0 && int(frame)%120 == 0 {
		in.HasCursor = true
		in.CursorX = float64(int(handle)*40 - 60)
		in.CursorY = float64(int(frame/120)%5*10 - 20)
	}
	return in
}
