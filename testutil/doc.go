// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 TripFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的上下文、异步断言与数据工具，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertSections
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual / AssertNoReceive
  - 数据工具: MustParseJSON / WaitForChannel

# 子包

  - testutil/mocks: ScriptedAgent（可编排的能力 Agent）与 MockPredictor
    （可编排的理解服务），均支持 Builder 模式与错误注入
  - testutil/fixtures: 典型用户请求文本与结果样例

# 使用示例

	ctx := testutil.TestContext(t)
	hotel := mocks.NewScriptedAgent(types.LabelHotel).WithBlock()
	flight := mocks.NewScriptedAgent(types.LabelFlight).WithText("Flight booked")
*/
package testutil
