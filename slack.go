package arena

import "math"

// Container slack policy. Growth adds 3/8 of the requested count plus a
// constant; the first allocation of a small container reserves 4 elements.
const (
	slackFirstGrow     = 4
	slackConstantGrow  = 16
	slackGrowNum       = 3
	slackGrowDen       = 8
	slackShrinkBytes   = 16 << 10
	slackShrinkMinElts = 64

	maxContainerLen = math.MaxInt32
)

// SlackGrow returns the capacity to allocate when a container holding
// curMax elements must hold newMax > curMax.
func SlackGrow(newMax, curMax int) int {
	grow := slackFirstGrow
	if curMax > 0 || newMax > grow {
		grow = newMax + slackGrowNum*newMax/slackGrowDen + slackConstantGrow
	}
	if grow < newMax || grow > maxContainerLen {
		return maxContainerLen
	}
	return grow
}

// SlackShrink returns the capacity to keep when a container of capacity
// curMax now holds newMax < curMax elements. It shrinks to fit only when the
// slack is large in bytes or relative to the element count, and more than 64
// elements (or the container is empty).
func SlackShrink(newMax, curMax int, elemSize uintptr) int {
	slackElts := curMax - newMax
	tooManyBytes := uintptr(slackElts)*elemSize >= slackShrinkBytes
	tooManyElts := 3*newMax < 2*curMax
	if (tooManyBytes || tooManyElts) && (slackElts > slackShrinkMinElts || newMax == 0) {
		return newMax
	}
	return curMax
}
