package sample

import "fmt"

// Kind names a value's type.
func Kind(i interface{}) string {
	switch v := i.(type) {
	case int:
		return fmt.Sprint(v)
	}
	return ""
}

func Drain(ch chan int) int {
	total := 0
	select {
	case x := <-ch:
		total += x
	default:
	}
	return total
}
